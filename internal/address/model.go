package address

type Address struct {
	ID         string `json:"id"`
	UserID     string `json:"userId"`
	FullName   string `json:"fullName"`
	Line1      string `json:"line1"`
	Line2      string `json:"line2,omitempty"`
	City       string `json:"city"`
	State      string `json:"state,omitempty"`
	PostalCode string `json:"postalCode"`
	Country    string `json:"country"`
}

func (a Address) Validate() error {
	switch {
	case a.UserID == "":
		return invalid("userId")
	case a.FullName == "":
		return invalid("fullName")
	case a.Line1 == "":
		return invalid("line1")
	case a.City == "":
		return invalid("city")
	case a.PostalCode == "":
		return invalid("postalCode")
	case a.Country == "":
		return invalid("country")
	}
	return nil
}
