// cloudvm serves the VM management API on the cloudvm HTTP engine.
//
// Usage:
//
//	# Start with defaults, the in-memory store and the in-process cache
//	cloudvm serve --memory-store
//
//	# Start from a configuration file, overriding the port
//	cloudvm serve --config cloudvm.yaml --port 8080
//
//	# Print the route table
//	cloudvm routes
package main

func main() {
	Execute()
}
