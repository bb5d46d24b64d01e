package cmd

import (
	_ "stack-keeper/cmd/git"
	_ "stack-keeper/cmd/logs"
	_ "stack-keeper/cmd/root"
	_ "stack-keeper/cmd/server"
	_ "stack-keeper/cmd/service"
)
