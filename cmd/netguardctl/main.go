// Command netguardctl is the terminal console for a GoNetGuard server.
package main

func main() {
	Execute()
}
