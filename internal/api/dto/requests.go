package dto

// ConfirmLinkRequest confirms that a line description belongs to a code.
type ConfirmLinkRequest struct {
	SupplierID  string `json:"supplier_id"`
	Description string `json:"description"`
	Code        string `json:"code"`
}

// ConfirmLinksRequest is the body of POST /api/links. A single link may be
// sent at the top level instead of in Links.
type ConfirmLinksRequest struct {
	ConfirmLinkRequest
	Links []ConfirmLinkRequest `json:"links"`
}

// All returns every link in the request.
func (r ConfirmLinksRequest) All() []ConfirmLinkRequest {
	if r.Description != "" || r.Code != "" {
		return append([]ConfirmLinkRequest{r.ConfirmLinkRequest}, r.Links...)
	}
	return r.Links
}

// Validate returns a message describing the first invalid link, or "".
func (r ConfirmLinksRequest) Validate() string {
	links := r.All()
	if len(links) == 0 {
		return "at least one link is required"
	}
	for _, l := range links {
		if l.Description == "" {
			return "description is required"
		}
		if l.Code == "" {
			return "code is required"
		}
	}
	return ""
}
