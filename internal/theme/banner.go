package theme

import (
	"fmt"
)

// Banner returns the CLI banner.
func Banner() string {
	const cyan = "\033[36m"
	const yellow = "\033[33m"
	const reset = "\033[0m"

	art := "" +
		cyan + "   ___  _     _\n" + reset +
		cyan + "  / __|| |_  (_) _ _  _ __\n" + reset +
		cyan + " | (__ |   \\ | || '_|| '_ \\\n" + reset +
		cyan + "  \\___||_||_||_||_|  | .__/\n" + reset +
		cyan + "                     |_|\n" + reset +
		yellow + "  ─────────────────────────\n" + reset +
		"  a terminal client for your timeline\n"
	return art
}

// PrintBanner prints the banner to stdout.
func PrintBanner() {
	fmt.Print(Banner())
}
