// Package ble implements the BLE GATT protocol adapter (C8): three fixed
// services exposed over org.bluez's GattManager1/GattApplication1
// machinery, translating characteristic I/O into calls against
// internal/commissioning's CommissioningService.
package ble

// Service and characteristic UUIDs are frozen by the external protocol
// (spec §6) and must not change independently of a protocol version
// bump.
const (
	AuthServiceUUID    = "d69a37ee-1d8a-4329-bd24-25db4af3c865"
	ScanServiceUUID    = "d69a37ee-1d8a-4329-bd24-25db4af3c863"
	ConnectServiceUUID = "d69a37ee-1d8a-4329-bd24-25db4af3c864"

	AuthKeyCharUUID = "d69a37ee-1d8a-4329-bd24-25db4af3c866"

	ScanControlCharUUID = "d69a37ee-1d8a-4329-bd24-25db4af3c867"
	ScanStateCharUUID   = "d69a37ee-1d8a-4329-bd24-25db4af3c868"
	ScanResultsCharUUID = "d69a37ee-1d8a-4329-bd24-25db4af3c869"

	ConnectSSIDCharUUID    = "d69a37ee-1d8a-4329-bd24-25db4af3c86a"
	ConnectPSKCharUUID     = "d69a37ee-1d8a-4329-bd24-25db4af3c86b"
	ConnectControlCharUUID = "d69a37ee-1d8a-4329-bd24-25db4af3c86c"
	ConnectStateCharUUID   = "d69a37ee-1d8a-4329-bd24-25db4af3c86d"
)

// MaxChunkSize bounds a single Results characteristic read (§4.7).
const MaxChunkSize = 100
