package booking

import "strings"

// ParseCustomerName splits a free-form buyer name for the gateway customer.
// "Family, Given" is honoured; otherwise the first word is the given name.
func ParseCustomerName(name string) (given, family string) {
	name = strings.TrimSpace(name)
	if name == "" {
		return "", ""
	}
	if i := strings.Index(name, ","); i >= 0 {
		return strings.TrimSpace(name[i+1:]), strings.TrimSpace(name[:i])
	}
	fields := strings.Fields(name)
	if len(fields) == 1 {
		return fields[0], ""
	}
	return fields[0], strings.TrimSpace(name[len(fields[0]):])
}
