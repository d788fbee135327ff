// Package autoload registers every built-in channel factory.
package autoload

import (
	_ "reasoner/pkg/channels/telegram"
	_ "reasoner/pkg/channels/web"
)
