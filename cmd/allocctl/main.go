// Command allocctl inspects and edits allocation worksheets from the
// terminal against the configured backend.
package main

func main() {
	Execute()
}
