// inventoryctl is the operator CLI for the GCP inventory pipeline.
package main

func main() {
	Execute()
}
