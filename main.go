// Command harvester collects job postings from Saramin.
package main

import "github.com/JakeFAU/jobpost-harvester/cmd"

func main() {
	cmd.Execute()
}
