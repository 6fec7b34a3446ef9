package models

// RequestContext is the slice of an inbound request the admission core needs.
// The enclosing HTTP pipeline fills it in; the core never touches the raw
// request.
type RequestContext struct {
	UserID    string `json:"user_id,omitempty"`
	IP        string `json:"ip"`
	Endpoint  string `json:"endpoint"`
	Method    string `json:"method"`
	Role      string `json:"role,omitempty"`
	UserAgent string `json:"user_agent,omitempty"`
}

// Identifier keys rate-limit counters: authenticated requests count per user,
// anonymous ones per IP.
func (r RequestContext) Identifier() string {
	if r.UserID != "" {
		return "user:" + r.UserID
	}
	return "ip:" + r.IP
}
