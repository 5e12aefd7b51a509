package geo

// Location is a coarse, best-effort place derived from an IP address.
type Location struct {
	Country string
	City    string
}

func (l Location) String() string {
	switch {
	case l.City != "" && l.Country != "":
		return l.City + ", " + l.Country
	case l.Country != "":
		return l.Country
	default:
		return ""
	}
}

// Resolver maps an IP address to an approximate location. Implementations
// are swappable collaborators; resolution failures are represented by the
// zero Location, never by an error.
type Resolver interface {
	Resolve(ip string) Location
}

// NullResolver resolves nothing. It is the default when no geolocation
// backend is configured.
type NullResolver struct{}

func (NullResolver) Resolve(ip string) Location {
	return Location{}
}
