package metadata

import "fmt"

// LoadOrder is the activation tier of a module. Lower tiers activate first.
type LoadOrder int

const (
	LoadOrderAPI LoadOrder = iota
	LoadOrderCore
	LoadOrderDefault
	LoadOrderLate
)

func (o LoadOrder) String() string {
	switch o {
	case LoadOrderAPI:
		return "API"
	case LoadOrderCore:
		return "CORE"
	case LoadOrderDefault:
		return "DEFAULT"
	case LoadOrderLate:
		return "LATE"
	default:
		return fmt.Sprintf("LoadOrder(%d)", int(o))
	}
}

// ParseLoadOrder maps a tier name (as written in manifests) to its value.
// The empty string is LoadOrderDefault.
func ParseLoadOrder(s string) (LoadOrder, error) {
	switch s {
	case "API", "api":
		return LoadOrderAPI, nil
	case "CORE", "core":
		return LoadOrderCore, nil
	case "", "DEFAULT", "default":
		return LoadOrderDefault, nil
	case "LATE", "late":
		return LoadOrderLate, nil
	}
	return 0, fmt.Errorf("metadata: unknown load order %q", s)
}

// ModuleDescriptor describes one discovered module. Instance is the module
// object itself; its concrete type is owned by the module package, which
// asserts it at registration.
type ModuleDescriptor struct {
	Name      string
	Order     LoadOrder
	DependsOn []string
	Instance  any
}
