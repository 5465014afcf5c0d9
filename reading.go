package hih61xx

// Reading is one published measurement. Fields are fixed-point: hundredths of
// a degree Celsius and hundredths of a percent relative humidity.
type Reading struct {
	AmbientTemp int16
	RelHumidity uint16
	Status      Status
}

var (
	initialReading = Reading{SentinelAmbientTemp, SentinelRelHumidity, StatusUninitialised}
	timeoutReading = Reading{SentinelAmbientTemp, SentinelRelHumidity, StatusTimeout}
)

// Valid reports whether r holds a measurement, as opposed to sentinel values.
func (r Reading) Valid() bool {
	return r.Status <= StatusNotUsed
}

// Decode converts the four result bytes returned by the sensor.
func Decode(data [resultLen]byte) Reading {
	rawHumidity := readRaw(data[0]&0x3F, data[1], 8)
	rawTemp := readRaw(data[2], data[3], 6)

	return Reading{
		Status:      Status(data[0] >> 6),
		RelHumidity: uint16(uint32(rawHumidity) * humidityScale / fullScale),
		AmbientTemp: int16(int32(rawTemp)*tempScale/fullScale - tempOffset),
	}
}

// readRaw joins a 14-bit big-endian field where lsb contributes its top
// lsbBits bits.
func readRaw(msb, lsb byte, lsbBits uint) uint16 {
	return uint16(msb)<<lsbBits | uint16(lsb)>>(8-lsbBits)
}
