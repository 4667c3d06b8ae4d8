package model

import "strconv"

// Service is one entry of the salon catalogue.
type Service struct {
	Code string
	Name string
}

// Services lists the catalogue in menu order.
var Services = []Service{
	{Code: "manicure", Name: "Маникюр"},
	{Code: "pedicure", Name: "Педикюр"},
	{Code: "eyebrows", Name: "Брови"},
	{Code: "eyelashes", Name: "Ресницы"},
}

// ServiceName maps a code to its display name. Unknown codes pass through.
func ServiceName(code string) string {
	for _, s := range Services {
		if s.Code == code {
			return s.Name
		}
	}
	return code
}

func itoa(v int64) string {
	return strconv.FormatInt(v, 10)
}
