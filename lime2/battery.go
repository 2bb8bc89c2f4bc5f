package lime2

// A BatteryModel converts the remote node ADC counts with a linear fitting.
type BatteryModel struct {
	AngularCoeff  float64 `yaml:"angular_coeff" json:"angular_coeff"`
	VoltageOffset float64 `yaml:"voltage_offset" json:"voltage_offset"`
	MaxVoltage    float64 `yaml:"max_voltage" json:"max_voltage"`
}

func DefaultBatteryModel() BatteryModel {
	return BatteryModel{
		AngularCoeff:  DefaultAngularCoeff,
		VoltageOffset: DefaultVoltageOffset,
		MaxVoltage:    DefaultMaxVoltage,
	}
}

func (m BatteryModel) Voltage(adc uint8) float64 {
	return m.AngularCoeff*float64(adc) + m.VoltageOffset
}

// Percentage is relative to MaxVoltage and is not clamped to [0,100].
func (m BatteryModel) Percentage(adc uint8) float64 {
	return 100 * m.Voltage(adc) / m.MaxVoltage
}

func (m BatteryModel) Reading(adc uint8) Battery {
	return Battery{
		ADC:        adc,
		Voltage:    m.Voltage(adc),
		Percentage: m.Percentage(adc),
	}
}

// ADCToVoltage uses the default model.
func ADCToVoltage(adc uint8) float64 {
	return DefaultBatteryModel().Voltage(adc)
}

// ADCToPercentage uses the default model.
func ADCToPercentage(adc uint8) float64 {
	return DefaultBatteryModel().Percentage(adc)
}
