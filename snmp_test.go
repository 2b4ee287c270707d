package main

import (
	"reflect"
	"testing"

	"github.com/gosnmp/gosnmp"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func fieldByID(fields []SNMPField, id string) (SNMPField, bool) {
	for _, f := range fields {
		if f.Id == id {
			return f, true
		}
	}
	return SNMPField{}, false
}

func TestSNMPFieldsFollowEnabledMask(t *testing.T) {
	data := newSNMPData()
	enabled := &SNMPData{
		Battery: &SNMPDataBattery{Voltage: 1},
		Control: &SNMPDataControl{ShutdownAfter: 1},
	}

	fields := snmpFields(data, enabled)
	require.Len(t, fields, 2)

	voltage, ok := fieldByID(fields, "upsBatteryVoltage")
	require.True(t, ok)
	assert.Equal(t, "Battery", voltage.Group)
	assert.False(t, voltage.Writable)

	shutdown, ok := fieldByID(fields, "upsShutdownAfterDelay")
	require.True(t, ok)
	assert.True(t, shutdown.Writable)

	data.Battery.Voltage = 136
	assert.Equal(t, 136, voltage.Value.Interface(), "fields alias the data")
}

func TestEnabledServicesAreServable(t *testing.T) {
	for _, f := range snmpFields(newSNMPData(), enabledServices()) {
		_, ok := asnType(f.Value.Type())
		assert.True(t, ok, f.Id)
	}
}

func TestASNType(t *testing.T) {
	tp, ok := asnType(reflect.TypeOf(TimesTamp(0)))
	assert.True(t, ok)
	assert.Equal(t, gosnmp.TimeTicks, tp)

	tp, ok = asnType(reflect.TypeOf(""))
	assert.True(t, ok)
	assert.Equal(t, gosnmp.OctetString, tp)

	tp, ok = asnType(reflect.TypeOf(0))
	assert.True(t, ok)
	assert.Equal(t, gosnmp.Integer, tp)

	_, ok = asnType(reflect.TypeOf(1.5))
	assert.False(t, ok)
}

func TestSetField(t *testing.T) {
	data := newSNMPData()

	require.NoError(t, setField(reflect.ValueOf(data.Control).Elem().FieldByName("ShutdownAfter"), 30))
	assert.Equal(t, 30, data.Control.ShutdownAfter)

	require.NoError(t, setField(reflect.ValueOf(data.Ident).Elem().FieldByName("Name"), []byte("rack-1")))
	assert.Equal(t, "rack-1", data.Ident.Name)

	assert.Error(t, setField(reflect.ValueOf(data.Ident).Elem().FieldByName("Name"), 5))
	assert.Error(t, setField(reflect.ValueOf(data.Control).Elem().FieldByName("ShutdownAfter"), "x"))
	assert.Error(t, setField(reflect.ValueOf(data.Control).Elem().FieldByName("ShutdownAfter"), nil))
}
