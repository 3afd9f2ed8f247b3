// internal/register/sdm630.go
package register

// Eastron SDM630-Modbus (v2) register map.
var sdm630Specs = []Spec{
	// ---- fast: per-phase ----
	float32Input("voltage_l1", 0x0000, "V", "voltage", "measurement", Basic, Fast, true).withPrecision(1),
	float32Input("voltage_l2", 0x0002, "V", "voltage", "measurement", Basic, Fast, true).withPrecision(1),
	float32Input("voltage_l3", 0x0004, "V", "voltage", "measurement", Basic, Fast, true).withPrecision(1),
	float32Input("current_l1", 0x0006, "A", "current", "measurement", Basic, Fast, true),
	float32Input("current_l2", 0x0008, "A", "current", "measurement", Basic, Fast, true),
	float32Input("current_l3", 0x000A, "A", "current", "measurement", Basic, Fast, true),
	float32Input("active_power_l1", 0x000C, "W", "power", "measurement", Basic, Fast, true),
	float32Input("active_power_l2", 0x000E, "W", "power", "measurement", Basic, Fast, true),
	float32Input("active_power_l3", 0x0010, "W", "power", "measurement", Basic, Fast, true),
	float32Input("sum_line_currents", 0x0030, "A", "current", "measurement", Basic, Fast, true),
	float32Input("total_system_power", 0x0034, "W", "power", "measurement", Basic, Fast, true),

	// ---- normal: power quality ----
	float32Input("apparent_power_l1", 0x0012, "VA", "apparent_power", "measurement", Advanced, Normal, false),
	float32Input("apparent_power_l2", 0x0014, "VA", "apparent_power", "measurement", Advanced, Normal, false),
	float32Input("apparent_power_l3", 0x0016, "VA", "apparent_power", "measurement", Advanced, Normal, false),
	float32Input("reactive_power_l1", 0x0018, "var", "reactive_power", "measurement", Advanced, Normal, false),
	float32Input("reactive_power_l2", 0x001A, "var", "reactive_power", "measurement", Advanced, Normal, false),
	float32Input("reactive_power_l3", 0x001C, "var", "reactive_power", "measurement", Advanced, Normal, false),
	float32Input("power_factor_l1", 0x001E, "", "power_factor", "measurement", Advanced, Normal, false).withPrecision(4),
	float32Input("power_factor_l2", 0x0020, "", "power_factor", "measurement", Advanced, Normal, false).withPrecision(4),
	float32Input("power_factor_l3", 0x0022, "", "power_factor", "measurement", Advanced, Normal, false).withPrecision(4),
	float32Input("average_line_current", 0x002E, "A", "current", "measurement", Advanced, Normal, false),
	float32Input("total_system_apparent_power", 0x0038, "VA", "apparent_power", "measurement", Advanced, Normal, false),
	float32Input("total_system_reactive_power", 0x003C, "var", "reactive_power", "measurement", Advanced, Normal, false),
	float32Input("total_system_power_factor", 0x003E, "", "power_factor", "measurement", Advanced, Normal, false).withPrecision(4),
	float32Input("frequency", 0x0046, "Hz", "frequency", "measurement", Basic, Normal, true).withPrecision(2),
	float32Input("voltage_thd_l1", 0x00EA, "%", "", "measurement", Advanced, Normal, false),
	float32Input("voltage_thd_l2", 0x00EC, "%", "", "measurement", Advanced, Normal, false),
	float32Input("voltage_thd_l3", 0x00EE, "%", "", "measurement", Advanced, Normal, false),
	float32Input("current_thd_l1", 0x00F0, "%", "", "measurement", Advanced, Normal, false),
	float32Input("current_thd_l2", 0x00F2, "%", "", "measurement", Advanced, Normal, false),
	float32Input("current_thd_l3", 0x00F4, "%", "", "measurement", Advanced, Normal, false),

	// ---- slow: energy ----
	float32Input("total_import_active_energy", 0x0048, "kWh", "energy", "total_increasing", Basic, Slow, true),
	float32Input("total_export_active_energy", 0x004A, "kWh", "energy", "total_increasing", TwoWay, Slow, false),
	float32Input("total_import_reactive_energy", 0x004C, "kvarh", "", "total_increasing", Advanced, Slow, false),
	float32Input("total_export_reactive_energy", 0x004E, "kvarh", "", "total_increasing", Advanced, Slow, false),
	float32Input("total_apparent_energy", 0x0050, "kVAh", "", "total_increasing", Advanced, Slow, false),
	float32Input("neutral_current", 0x00E0, "A", "current", "measurement", Advanced, Slow, false),
	float32Input("total_active_energy", 0x0156, "kWh", "energy", "total_increasing", Basic, Slow, true),
	float32Input("total_reactive_energy", 0x0158, "kvarh", "", "total_increasing", Advanced, Slow, false),
	float32Input("import_active_energy_l1", 0x015A, "kWh", "energy", "total_increasing", Advanced, Slow, false),
	float32Input("import_active_energy_l2", 0x015C, "kWh", "energy", "total_increasing", Advanced, Slow, false),
	float32Input("import_active_energy_l3", 0x015E, "kWh", "energy", "total_increasing", Advanced, Slow, false),
	float32Input("export_active_energy_l1", 0x0160, "kWh", "energy", "total_increasing", TwoWay, Slow, false),
	float32Input("export_active_energy_l2", 0x0162, "kWh", "energy", "total_increasing", TwoWay, Slow, false),
	float32Input("export_active_energy_l3", 0x0164, "kWh", "energy", "total_increasing", TwoWay, Slow, false),
	float32Input("total_active_energy_l1", 0x0166, "kWh", "energy", "total_increasing", Advanced, Slow, false),
	float32Input("total_active_energy_l2", 0x0168, "kWh", "energy", "total_increasing", Advanced, Slow, false),
	float32Input("total_active_energy_l3", 0x016A, "kWh", "energy", "total_increasing", Advanced, Slow, false),

	// ---- slow: demand ----
	float32Input("total_system_power_demand", 0x0054, "W", "power", "measurement", Diagnostic, Slow, false),
	float32Input("max_total_system_power_demand", 0x0056, "W", "power", "measurement", Diagnostic, Slow, false),
	float32Input("total_system_va_demand", 0x0064, "VA", "apparent_power", "measurement", Diagnostic, Slow, false),
	float32Input("max_total_system_va_demand", 0x0066, "VA", "apparent_power", "measurement", Diagnostic, Slow, false),
	float32Input("neutral_current_demand", 0x0068, "A", "current", "measurement", Diagnostic, Slow, false),
	float32Input("max_neutral_current_demand", 0x006A, "A", "current", "measurement", Diagnostic, Slow, false),

	// ---- identity ----
	identity(KeySerialNumber, 0xFC00, Uint32),
	identity("meter_code", 0xFC02, Hex16),
	identity("software_version", 0xFC03, Hex16),

	// ---- setup ----
	selectReg("demand_period", 0x0002, Float32, 0, 5, 8, 10, 15, 20, 30, 60).withUnit("min"),
	selectReg("pulse_1_width", 0x000C, Float32, 60, 100, 200).withUnit("ms"),
	selectReg("network_parity_stop", 0x0012, Float32, 0, 1, 2, 3),
	numberReg(KeyMeterID, 0x0014, Float32, 1, 247, 1).withPrecision(0),
	selectReg("pulse_1_divisor", 0x0016, Float32, 0, 1, 2, 3, 4, 5),
	selectReg("baud_rate", 0x001C, Float32, 0, 1, 2, 3, 4),
	selectReg("pulse_1_energy_type", 0x0056, Float32, 1, 2, 4, 5, 6, 8),
}
