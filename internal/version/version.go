// ABOUTME: Build and product identification
// ABOUTME: Shared by the CLI banner, user agents and the relay health route
package version

const (
	Product      = "streamtap"
	Manufacturer = "harperreed"
	Version      = "0.1.0"
)

// UserAgent identifies outbound HTTP and websocket requests
func UserAgent() string {
	return Product + "/" + Version
}
