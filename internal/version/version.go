// ABOUTME: Version and product identification
// ABOUTME: Reported in logs and the mDNS TXT records
package version

const (
	Version      = "0.1.0"
	Product      = "rdpsnd-go"
	Manufacturer = "Resonate Protocol"
)

// String returns the product/version pair, e.g. "rdpsnd-go/0.1.0"
func String() string {
	return Product + "/" + Version
}
