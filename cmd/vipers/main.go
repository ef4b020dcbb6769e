// Command vipers runs the surveillance dashboard, headless detection
// sessions and event log queries.
package main

func main() {
	Execute()
}
