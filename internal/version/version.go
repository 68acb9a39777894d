// ABOUTME: Version and product identity for the lob binaries
// ABOUTME: Version is overridden at build time with -ldflags
package version

// Version is replaced by -ldflags "-X github.com/LeagueOfBeans/lob-lan/internal/version.Version=..."
var Version = "0.1.0"

const (
	Product      = "League of Beans LAN"
	Manufacturer = "League of Beans"
)

// String returns the product and version for banners and the feed health check
func String() string {
	return Product + " " + Version
}
