package node

// ParamType names the value kind a parameter accepts.
type ParamType string

// Parameter types understood by hosts.
const (
	TypeString ParamType = "string"
	TypeText   ParamType = "text"
	TypeFloat  ParamType = "float"
	TypeInt    ParamType = "int"
	TypeEnum   ParamType = "enum"
	TypeToggle ParamType = "toggle"
	TypeMedia  ParamType = "media"
)

// ParamSpec describes one node input parameter. Min, Max, and Step only
// apply to numeric types; Options only applies to enums.
type ParamSpec struct {
	Name      string
	Label     string
	Type      ParamType
	Default   any
	Min       float64
	Max       float64
	Step      float64
	Options   []string
	Multiline bool
	Optional  bool
	Tooltip   string
}

// OutputSpec names one output slot and its host-visible type.
type OutputSpec struct {
	Name string
	Type string
}

// Spec is the static description a host renders for a node. Terminal
// marks display-only nodes that produce UI payloads instead of values.
type Spec struct {
	Name        string
	DisplayName string
	Category    string
	Inputs      []ParamSpec
	Outputs     []OutputSpec
	Terminal    bool
}

// Param returns the input parameter with the given name.
func (s Spec) Param(name string) (ParamSpec, bool) {
	for _, p := range s.Inputs {
		if p.Name == name {
			return p, true
		}
	}
	return ParamSpec{}, false
}
