package modbuscomm

import (
	"encoding/binary"
	"fmt"
	"log"
	"math"
	"os"
	"time"

	"github.com/goburrow/modbus"
)

// Poller reads and writes holding registers of a Modbus TCP target
type Poller struct {
	handler  *modbus.TCPClientHandler
	pollRate int
}

// PollerConfig is the configuration format for Poller
type PollerConfig struct {
	IPAddr       string `json:"IPAddr" yaml:"ipAddr"`
	Port         string `json:"Port" yaml:"port"`
	SlaveID      byte   `json:"SlaveID" yaml:"slaveID"`
	Timeout      int    `json:"Timeout" yaml:"timeout"`
	PollRate     int    `json:"PollRate" yaml:"pollRate"`
	EnableLogger bool   `json:"EnableLogger" yaml:"enableLogger"`
}

// NewPoller is a factory for the Poller struct
func NewPoller(cfg PollerConfig) Poller {
	handler := modbus.NewTCPClientHandler(cfg.IPAddr + ":" + cfg.Port)
	handler.Timeout = time.Millisecond * time.Duration(cfg.Timeout)
	handler.SlaveId = cfg.SlaveID

	if cfg.EnableLogger {
		handler.Logger = log.New(os.Stdout, "modbus: ", log.LstdFlags)
	}

	return Poller{
		handler:  handler,
		pollRate: cfg.PollRate,
	}
}

// PollRate is the configured interval between polls in milliseconds
func (m Poller) PollRate() int {
	return m.pollRate
}

// Read returns the decoded value of every register by name. Registers that
// fail to read are left out and the last error is returned.
func (m Poller) Read(registers []Register) (map[string]float64, error) {
	err := m.handler.Connect()
	if err != nil {
		return nil, err
	}
	defer m.handler.Close()

	client := modbus.NewClient(m.handler)
	readValues := make(map[string]float64)
	for _, register := range registers {
		resp, readErr := client.ReadHoldingRegisters(register.Address, sizeOf(register.DataType))
		if readErr != nil {
			err = fmt.Errorf("read %v: %w", register.Name, readErr)
			continue
		}
		readValues[register.Name] = decode(resp, register)
	}
	return readValues, err
}

// Write encodes and writes every named value to its register.
func (m Poller) Write(registers []Register, writeValues map[string]float64) error {
	err := m.handler.Connect()
	if err != nil {
		return err
	}
	defer m.handler.Close()

	client := modbus.NewClient(m.handler)
	for name, val := range writeValues {
		i, findErr := findIndexByName(registers, name)
		if findErr != nil {
			err = findErr
			continue
		}
		valBytes := encode(val, registers[i])
		_, writeErr := client.WriteMultipleRegisters(registers[i].Address, sizeOf(registers[i].DataType), valBytes)
		if writeErr != nil {
			err = fmt.Errorf("write %v: %w", name, writeErr)
		}
	}
	return err
}

// findIndexByName returns the index in the array of the register, if found. Returns -1 and error if not found.
func findIndexByName(registers []Register, name string) (int, error) {
	for index, register := range registers {
		if register.Name == name {
			return index, nil
		}
	}
	return -1, fmt.Errorf("register %v not found in register array", name)
}

// encode convert a float64 into a byte array
func encode(val float64, register Register) []byte {
	var bytes []byte
	endian := getByteOrder(register.Endianness)
	switch register.DataType {
	case U16, I16:
		bytes = make([]byte, 2*sizeOf(U16))
		endian.PutUint16(bytes, uint16(val))
	case U32, I32:
		bytes = make([]byte, 2*sizeOf(U32))
		endian.PutUint32(bytes, uint32(val))
	case F32:
		bytes = make([]byte, 2*sizeOf(F32))
		endian.PutUint32(bytes, math.Float32bits(float32(val)))
	case U64, I64:
		bytes = make([]byte, 2*sizeOf(U64))
		endian.PutUint64(bytes, uint64(val))
	case F64:
		bytes = make([]byte, 2*sizeOf(F64))
		endian.PutUint64(bytes, math.Float64bits(val))
	}
	return bytes
}

// decode coverts byte arrays into float64s
func decode(bytes []byte, register Register) float64 {
	var n float64
	endian := getByteOrder(register.Endianness)
	switch register.DataType {
	case U16:
		n = float64(endian.Uint16(bytes))
	case I16:
		n = float64(int16(endian.Uint16(bytes)))
	case U32:
		n = float64(endian.Uint32(bytes))
	case I32:
		n = float64(int32(endian.Uint32(bytes)))
	case F32:
		n = float64(math.Float32frombits(endian.Uint32(bytes)))
	case U64:
		n = float64(endian.Uint64(bytes))
	case I64:
		n = float64(int64(endian.Uint64(bytes)))
	case F64:
		n = math.Float64frombits(endian.Uint64(bytes))
	}
	return n
}

// getByteOrder returns the correct binary.ByteOrder for the register type
func getByteOrder(e Endian) binary.ByteOrder {
	if e == LittleEndian {
		return binary.LittleEndian
	}
	return binary.BigEndian
}

// sizeOf returns the number of u16 registers for the datatype
func sizeOf(t DataType) uint16 {
	switch t {
	case U16, I16:
		return 1
	case U32, I32, F32:
		return 2
	case U64, I64, F64:
		return 4
	}
	return 0
}
