package main

import (
	"fmt"
	"net"
	"strconv"
	"strings"
	"time"

	"github.com/gosnmp/gosnmp"
)

var startTime = time.Now()

// sysUpTime returns hundredths of a second since start, as TimeTicks count.
func sysUpTime() TimesTamp {
	return TimesTamp(time.Since(startTime) / (10 * time.Millisecond))
}

// ExtractEnterpriseIDAndSpecificTrap 按 RFC 3584 将 v2 Trap OID 拆成 v1 的企业 ID 和 SpecificTrap。
// 倒数第二位为 0 时去掉最后两位, 否则只去掉最后一位。
func ExtractEnterpriseIDAndSpecificTrap(oid string) (string, int, error) {
	oid = strings.TrimPrefix(oid, ".")
	parts := strings.Split(oid, ".")
	if len(parts) < 3 {
		return "", 0, fmt.Errorf("无效的 OID: %s", oid)
	}

	// "1.3.6.1.4.1" 是企业 OID 的标准前缀
	// "1.3.6.1.2.1" 是 IANA OID 的标准前缀
	if !strings.HasPrefix(oid, "1.3.6.1.4.1") && !strings.HasPrefix(oid, "1.3.6.1.2.1") {
		return "", 0, fmt.Errorf("OID 不是企业特定的 OID: %s", oid)
	}

	specificTrap, err := strconv.Atoi(parts[len(parts)-1])
	if err != nil {
		return "", 0, fmt.Errorf("无法解析 SpecificTrap 值: %v", err)
	}

	strip := 1
	if parts[len(parts)-2] == "0" {
		strip = 2
	}
	enterpriseID := strings.Join(parts[:len(parts)-strip], ".")

	return enterpriseID, specificTrap, nil
}

func getAuthProto(proto string) gosnmp.SnmpV3AuthProtocol {
	switch proto {
	case "MD5":
		return gosnmp.MD5
	case "SHA":
		return gosnmp.SHA
	case "SHA224":
		return gosnmp.SHA224
	case "SHA256":
		return gosnmp.SHA256
	case "SHA384":
		return gosnmp.SHA384
	case "SHA512":
		return gosnmp.SHA512
	}
	return gosnmp.NoAuth
}

func getPrivProto(proto string) gosnmp.SnmpV3PrivProtocol {
	switch proto {
	case "DES":
		return gosnmp.DES
	case "AES":
		return gosnmp.AES
	case "AES192":
		return gosnmp.AES192
	case "AES192C":
		return gosnmp.AES192C
	case "AES256":
		return gosnmp.AES256
	case "AES256C":
		return gosnmp.AES256C
	}
	return gosnmp.NoPriv
}

type TrapDataItem struct {
	OID   string // 已解析的 OID
	Type  gosnmp.Asn1BER
	Value any
}

type TrapData struct {
	OID  string // 已解析的 Trap OID
	Data []TrapDataItem
}

const (
	sysUpTimeOID   = ".1.3.6.1.2.1.1.3.0"
	snmpTrapOIDOID = ".1.3.6.1.6.3.1.1.4.1.0"
)

// TrapSender delivers alarm traps to one manager.
type TrapSender struct {
	client *gosnmp.GoSNMP
}

func newTrapSender(target, community, version string) (*TrapSender, error) {
	host, portStr, err := net.SplitHostPort(target)
	if err != nil {
		host, portStr = target, "162"
	}
	port, err := strconv.ParseUint(portStr, 10, 16)
	if err != nil {
		return nil, fmt.Errorf("trap port %q: %w", portStr, err)
	}

	client := &gosnmp.GoSNMP{
		Target:    host,
		Port:      uint16(port),
		Community: community,
		Version:   gosnmp.Version2c,
		Timeout:   2 * time.Second,
		Retries:   1,
	}
	if version == "1" {
		client.Version = gosnmp.Version1
	}
	if err := client.Connect(); err != nil {
		return nil, fmt.Errorf("connect trap target %s: %w", target, err)
	}
	return &TrapSender{client: client}, nil
}

// buildTrap turns a TrapData into the PDU gosnmp sends for version.
func buildTrap(version gosnmp.SnmpVersion, trap TrapData, uptime TimesTamp) (gosnmp.SnmpTrap, error) {
	vars := make([]gosnmp.SnmpPDU, 0, len(trap.Data)+2)
	if version != gosnmp.Version1 {
		vars = append(vars,
			gosnmp.SnmpPDU{Name: sysUpTimeOID, Type: gosnmp.TimeTicks, Value: uint32(uptime)},
			gosnmp.SnmpPDU{Name: snmpTrapOIDOID, Type: gosnmp.ObjectIdentifier, Value: trap.OID},
		)
	}
	for _, item := range trap.Data {
		vars = append(vars, gosnmp.SnmpPDU{Name: item.OID, Type: item.Type, Value: item.Value})
	}

	pdu := gosnmp.SnmpTrap{Variables: vars}
	if version == gosnmp.Version1 {
		enterprise, specific, err := ExtractEnterpriseIDAndSpecificTrap(trap.OID)
		if err != nil {
			return pdu, err
		}
		pdu.Enterprise = "." + enterprise
		pdu.AgentAddress = "0.0.0.0"
		pdu.GenericTrap = 6
		pdu.SpecificTrap = specific
		pdu.Timestamp = uint(uptime)
	}
	return pdu, nil
}

func (t *TrapSender) Send(trap TrapData) error {
	pdu, err := buildTrap(t.client.Version, trap, sysUpTime())
	if err != nil {
		return err
	}
	_, err = t.client.SendTrap(pdu)
	return err
}

func (t *TrapSender) Close() {
	if t.client.Conn != nil {
		t.client.Conn.Close()
	}
}
