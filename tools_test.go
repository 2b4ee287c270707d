package main

import (
	"testing"

	"github.com/gosnmp/gosnmp"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestExtractEnterpriseIDAndSpecificTrap(t *testing.T) {
	// upsTrapAlarmEntryAdded ::= { upsTraps 3 }
	id, specific, err := ExtractEnterpriseIDAndSpecificTrap(".1.3.6.1.2.1.33.2.3")
	require.NoError(t, err)
	assert.Equal(t, "1.3.6.1.2.1.33.2", id)
	assert.Equal(t, 3, specific)

	id, specific, err = ExtractEnterpriseIDAndSpecificTrap(".1.3.6.1.4.1.935.0.12")
	require.NoError(t, err)
	assert.Equal(t, "1.3.6.1.4.1.935", id)
	assert.Equal(t, 12, specific)

	_, _, err = ExtractEnterpriseIDAndSpecificTrap("1.3")
	assert.Error(t, err)
	_, _, err = ExtractEnterpriseIDAndSpecificTrap("1.2.3.4.5")
	assert.Error(t, err)
	_, _, err = ExtractEnterpriseIDAndSpecificTrap("1.3.6.1.4.1.0.x")
	assert.Error(t, err)
	_, _, err = ExtractEnterpriseIDAndSpecificTrap("1.3.6.1.4.1.935.x")
	assert.Error(t, err)
}

func TestGetProtocols(t *testing.T) {
	assert.Equal(t, gosnmp.MD5, getAuthProto("MD5"))
	assert.Equal(t, gosnmp.SHA256, getAuthProto("SHA256"))
	assert.Equal(t, gosnmp.DES, getPrivProto("DES"))
	assert.Equal(t, gosnmp.AES256, getPrivProto("AES256"))
}

func TestBuildTrap(t *testing.T) {
	trap := TrapData{
		OID: ".1.3.6.1.2.1.33.2.3",
		Data: []TrapDataItem{
			{OID: ".1.3.6.1.2.1.33.1.6.2.1.1.1", Type: gosnmp.Integer, Value: 1},
		},
	}

	t.Run("v2c", func(t *testing.T) {
		pdu, err := buildTrap(gosnmp.Version2c, trap, 1234)
		require.NoError(t, err)
		require.Len(t, pdu.Variables, 3)
		assert.Equal(t, sysUpTimeOID, pdu.Variables[0].Name)
		assert.Equal(t, uint32(1234), pdu.Variables[0].Value)
		assert.Equal(t, snmpTrapOIDOID, pdu.Variables[1].Name)
		assert.Equal(t, trap.OID, pdu.Variables[1].Value)
		assert.Equal(t, trap.Data[0].OID, pdu.Variables[2].Name)
	})

	t.Run("v1", func(t *testing.T) {
		pdu, err := buildTrap(gosnmp.Version1, trap, 1234)
		require.NoError(t, err)
		require.Len(t, pdu.Variables, 1)
		assert.Equal(t, ".1.3.6.1.2.1.33.2", pdu.Enterprise)
		assert.Equal(t, 6, pdu.GenericTrap)
		assert.Equal(t, 3, pdu.SpecificTrap)
		assert.Equal(t, uint(1234), pdu.Timestamp)
	})
}
