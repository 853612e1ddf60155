// genaibridge exposes the POSTECH GenAI agent API behind an OpenAI-compatible
// Chat Completions surface.
//
// Usage:
//
//	# Start the proxy with settings from the environment and ./.env
//	genaibridge serve
//
//	# Use another env file and listen address
//	genaibridge serve --env-file /etc/genaibridge.env --addr :9000
//
//	# Show the configured model table
//	genaibridge models
//
//	# Show version information
//	genaibridge version
package main

func main() {
	Execute()
}
