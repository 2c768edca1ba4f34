// kienzlefax-worker — supervisor daemon for HylaFAX transmissions.
package main

import "github.com/thomaskien/kienzlefax/internal/cli"

func main() {
	cli.Execute()
}
