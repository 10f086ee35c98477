package server

const (
	colourReset = "\033[0m"
	colourGray  = "\033[90m"
)

// methodColours tints the method column of the DEV route table
var methodColours = map[string]string{
	"GET":     "\033[32m",
	"POST":    "\033[34m",
	"OPTIONS": "\033[36m",
}
