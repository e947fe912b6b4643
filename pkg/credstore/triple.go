package credstore

// Triple is the unit the whole session core manipulates: the three
// correlated credentials issued together by the identity provider.
type Triple struct {
	// Access is the opaque bearer credential used to authorise API calls.
	Access string `json:"access"`
	// Identity is the signed self-describing credential carrying the
	// claim set.
	Identity string `json:"identity"`
	// Renewal is the long-lived credential exchangeable for a fresh
	// triple.
	Renewal string `json:"renewal"`
}

// Complete reports whether all three credentials are present. A store
// holding only a subset is treated as holding no session at all.
func (t Triple) Complete() bool {
	return t.Access != "" && t.Identity != "" && t.Renewal != ""
}
