package cmd

import (
	"io"

	"github.com/fatih/color"
)

const banner = `
  _   _                     __     __          _ _
 | \ | | _____  ___   _ ___ \ \   / /_ _ _   _| | |_
 |  \| |/ _ \ \/ / | | / __| \ \ / / _` + "`" + ` | | | | | __|
 | |\  |  __/>  <| |_| \__ \  \ V / (_| | |_| | | |_
 |_| \_|\___/_/\_\\__,_|___/   \_/ \__,_|\__,_|_|\__|
`

func printBanner(w io.Writer) {
	color.New(color.FgBlue).Fprint(w, banner)
	color.New(color.FgGreen).Fprintf(w, "  Secret Vault - Version %s\n\n", Version)
}
