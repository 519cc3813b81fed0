package obd

// Diagnostic commands, separate from the pollable PID table.
var (
	GetDTC   = Command{Name: "GET_DTC", Description: "Get diagnostic trouble codes"}
	ClearDTC = Command{Name: "CLEAR_DTC", Description: "Clear diagnostic trouble codes and freeze data"}
)

// commands maps parameter identifiers to command descriptors. The mapping
// is static so "not found" is an explicit result, not a runtime surprise.
var commands = map[string]Command{
	"RPM":                    {Name: "RPM", Description: "Engine RPM"},
	"SPEED":                  {Name: "SPEED", Description: "Vehicle speed"},
	"COOLANT_TEMP":           {Name: "COOLANT_TEMP", Description: "Engine coolant temperature"},
	"INTAKE_TEMP":            {Name: "INTAKE_TEMP", Description: "Intake air temperature"},
	"THROTTLE_POS":           {Name: "THROTTLE_POS", Description: "Throttle position"},
	"FUEL_LEVEL":             {Name: "FUEL_LEVEL", Description: "Fuel level input"},
	"MAF":                    {Name: "MAF", Description: "Air flow rate (MAF)"},
	"ENGINE_LOAD":            {Name: "ENGINE_LOAD", Description: "Calculated engine load"},
	"INTAKE_PRESSURE":        {Name: "INTAKE_PRESSURE", Description: "Intake manifold pressure"},
	"TIMING_ADVANCE":         {Name: "TIMING_ADVANCE", Description: "Timing advance"},
	"RUN_TIME":               {Name: "RUN_TIME", Description: "Engine run time"},
	"FUEL_PRESSURE":          {Name: "FUEL_PRESSURE", Description: "Fuel pressure"},
	"BAROMETRIC_PRESSURE":    {Name: "BAROMETRIC_PRESSURE", Description: "Barometric pressure"},
	"AMBIANT_AIR_TEMP":       {Name: "AMBIANT_AIR_TEMP", Description: "Ambient air temperature"},
	"OIL_TEMP":               {Name: "OIL_TEMP", Description: "Engine oil temperature"},
	"CONTROL_MODULE_VOLTAGE": {Name: "CONTROL_MODULE_VOLTAGE", Description: "Control module voltage"},
	"DISTANCE_W_MIL":         {Name: "DISTANCE_W_MIL", Description: "Distance traveled with MIL on"},
	"GET_DTC":                GetDTC,
	"CLEAR_DTC":              ClearDTC,
}

// Lookup resolves a parameter identifier to its command descriptor
func Lookup(name string) (Command, bool) {
	cmd, ok := commands[name]
	return cmd, ok
}

// CommandNames returns all known parameter identifiers
func CommandNames() []string {
	names := make([]string, 0, len(commands))
	for name := range commands {
		names = append(names, name)
	}
	return names
}
