// main.go
//
// Entry point of the qnetsim command; all the CLI handling lives in root.go

package main

func main() {
	Execute()
}
