// internal/register/sdm120.go
package register

// Eastron SDM120-Modbus register map.
// Measurements are float32 input registers; setup parameters are holding registers.
var sdm120Specs = []Spec{
	// ---- fast ----
	float32Input("voltage", 0x0000, "V", "voltage", "measurement", Basic, Fast, true).withPrecision(1),
	float32Input("current", 0x0006, "A", "current", "measurement", Basic, Fast, true),
	float32Input("active_power", 0x000C, "W", "power", "measurement", Basic, Fast, true),

	// ---- normal ----
	float32Input("apparent_power", 0x0012, "VA", "apparent_power", "measurement", Advanced, Normal, false),
	float32Input("reactive_power", 0x0018, "var", "reactive_power", "measurement", Advanced, Normal, false),
	float32Input("power_factor", 0x001E, "", "power_factor", "measurement", Advanced, Normal, false).withPrecision(4),
	float32Input("phase_angle", 0x0024, "°", "", "measurement", Advanced, Normal, false),
	float32Input("frequency", 0x0046, "Hz", "frequency", "measurement", Basic, Normal, true).withPrecision(2),

	// ---- slow: energy ----
	float32Input("import_active_energy", 0x0048, "kWh", "energy", "total_increasing", Basic, Slow, true),
	float32Input("export_active_energy", 0x004A, "kWh", "energy", "total_increasing", Basic, Slow, true),
	float32Input("import_reactive_energy", 0x004C, "kvarh", "", "total_increasing", Advanced, Slow, false),
	float32Input("export_reactive_energy", 0x004E, "kvarh", "", "total_increasing", Advanced, Slow, false),
	float32Input("total_active_energy", 0x0156, "kWh", "energy", "total_increasing", Basic, Slow, true),
	float32Input("total_reactive_energy", 0x0158, "kvarh", "", "total_increasing", Advanced, Slow, false),

	// ---- slow: demand ----
	float32Input("total_system_power_demand", 0x0054, "W", "power", "measurement", Diagnostic, Slow, false),
	float32Input("max_total_system_power_demand", 0x0056, "W", "power", "measurement", Diagnostic, Slow, false),
	float32Input("import_system_power_demand", 0x0058, "W", "power", "measurement", Diagnostic, Slow, false),
	float32Input("max_import_system_power_demand", 0x005A, "W", "power", "measurement", Diagnostic, Slow, false),
	float32Input("export_system_power_demand", 0x005C, "W", "power", "measurement", Diagnostic, Slow, false),
	float32Input("max_export_system_power_demand", 0x005E, "W", "power", "measurement", Diagnostic, Slow, false),
	float32Input("current_demand", 0x0102, "A", "current", "measurement", Diagnostic, Slow, false),
	float32Input("max_current_demand", 0x0108, "A", "current", "measurement", Diagnostic, Slow, false),

	// ---- identity ----
	identity(KeySerialNumber, 0xFC00, Uint32),
	identity("meter_code", 0xFC02, Hex16),
	identity("software_version", 0xFC03, Hex16),

	// ---- setup ----
	selectReg("relay_pulse_width", 0x000C, Float32, 60, 100, 200).withUnit("ms"),
	selectReg("network_parity_stop", 0x0012, Float32, 0, 1, 2, 3),
	numberReg(KeyMeterID, 0x0014, Float32, 1, 247, 1).withPrecision(0),
	selectReg("baud_rate", 0x001C, Float32, 0, 1, 2, 5),
	selectReg("pulse_1_output_mode", 0x0056, Float32, 1, 2, 4, 5, 6, 8),
	numberReg("time_of_scroll_display", 0xF900, Hex16, 0, 30, 1).withUnit("s"),
	selectReg("pulse_1_output", 0xF910, Hex16, 0, 1, 2, 3),
	selectReg("measurement_mode", 0xF920, Hex16, 1, 2, 3),
}
