package main

import (
	"errors"
	"fmt"
	"path/filepath"
	"reflect"
	"strings"
	"sync"
	"sync/atomic"

	"github.com/gosnmp/gosnmp"
	"github.com/hallidave/mibtool/smi"
	"github.com/slayercat/GoSNMPServer"
)

type TimesTamp uint32

type AlarmEntry struct {
	Index int
	Descr string
	Time  TimesTamp
}

type SNMPDataIdent struct { // 基本信息
	Manufacturer    string `snmp:"upsIdentManufacturer"`         // 制造商
	Model           string `snmp:"upsIdentModel"`                // 型号
	SoftwareVersion string `snmp:"upsIdentUPSSoftwareVersion"`   // UPS软件版本
	AgentVersion    string `snmp:"upsIdentAgentSoftwareVersion"` // Agent软件版本
	Name            string `snmp:"upsIdentName,w"`               // 名称
	AttachedDevices string `snmp:"upsIdentAttachedDevices,w"`    // 连接设备
}

type SNMPDataBattery struct { // 电池信息
	Status  int `snmp:"upsBatteryStatus"`             // 1: unknown, 2: batteryNormal, 3: batteryLow, 4: batteryDepleted
	Seconds int `snmp:"upsSecondsOnBattery"`          // 已经在电池上运行的时间
	Minutes int `snmp:"upsEstimatedMinutesRemaining"` // 估计剩余时间(分钟)
	Charge  int `snmp:"upsEstimatedChargeRemaining"`  // 估计剩余电量(%) 0-100
	Voltage int `snmp:"upsBatteryVoltage"`            // 0.1 Volt DC
	Current int `snmp:"upsBatteryCurrent"`            // 0.1 Amp DC
	Temp    int `snmp:"upsBatteryTemperature"`        // 摄氏度
}

type SNMPDataInput struct { // 输入信息
	LineBads int `snmp:"upsInputLineBads"`
	NumLines int `snmp:"upsInputNumLines"`
}

type SNMPDataOutput struct { // 输出信息
	Source   int `snmp:"upsOutputSource"`    // 1: other, 2: none, 3: normal, 4: bypass, 5: battery, 6: booster, 7: reducer
	Freq     int `snmp:"upsOutputFrequency"` // 0.1 Hz
	NumLines int `snmp:"upsOutputNumLines"`
}

type SNMPDataAlarm struct {
	Present int `snmp:"upsAlarmsPresent"`
}

type SNMPDataTest struct {
	Id             string    `snmp:"upsTestId,w"`           // 写入即发起测试
	SpinLock       int       `snmp:"upsTestSpinLock,w"`     // 测试锁
	ResultsSummary int       `snmp:"upsTestResultsSummary"` // 1: done, 2: done Warn, 3: done Error, 4: aborted, 5: in progress, 6: noRun
	ResultsDetail  string    `snmp:"upsTestResultsDetail"`
	StartTime      TimesTamp `snmp:"upsTestStartTime"`
	ElapsedTime    int       `snmp:"upsTestElapsedTime"`
}

type SNMPDataControl struct {
	ShutdownType   int `snmp:"upsShutdownType,w"`       // 1: output, 2: system
	ShutdownAfter  int `snmp:"upsShutdownAfterDelay,w"` // 秒, -1 取消
	StartupAfter   int `snmp:"upsStartupAfterDelay,w"`  // 秒
	RebootDuration int `snmp:"upsRebootWithDuration,w"` // 秒
	AutoRestart    int `snmp:"upsAutoRestart,w"`        // 1: on, 2: off
}

type SNMPDataConfig struct {
	InputVoltage  int `snmp:"upsConfigInputVoltage"`
	InputFreq     int `snmp:"upsConfigInputFreq"`
	OutputVoltage int `snmp:"upsConfigOutputVoltage"`
	OutputFreq    int `snmp:"upsConfigOutputFreq"`
	OutputVA      int `snmp:"upsConfigOutputVA"`
	AudibleStatus int `snmp:"upsConfigAudibleStatus,w"` // 蜂鸣器 1: disable, 2: enable, 3: mute
}

// SNMPData mirrors the UPS-MIB scalars. mu guards every field; the SNMP
// server reads from its own goroutine.
type SNMPData struct {
	mu sync.RWMutex

	Ident   *SNMPDataIdent   `snmp:"upsIdent"`
	Battery *SNMPDataBattery `snmp:"upsBattery"`
	Input   *SNMPDataInput   `snmp:"upsInput"`
	Output  *SNMPDataOutput  `snmp:"upsOutput"`
	Alarm   *SNMPDataAlarm   `snmp:"upsAlarm"`
	Test    *SNMPDataTest    `snmp:"upsTest"`
	Control *SNMPDataControl `snmp:"upsControl"`
	Config  *SNMPDataConfig  `snmp:"upsConfig"`
}

func newSNMPData() *SNMPData {
	return &SNMPData{
		Ident:   &SNMPDataIdent{},
		Battery: &SNMPDataBattery{},
		Input:   &SNMPDataInput{},
		Output:  &SNMPDataOutput{},
		Alarm:   &SNMPDataAlarm{},
		Test:    &SNMPDataTest{},
		Control: &SNMPDataControl{},
		Config:  &SNMPDataConfig{},
	}
}

// Update runs fn with the write lock held.
func (d *SNMPData) Update(fn func(d *SNMPData)) {
	d.mu.Lock()
	defer d.mu.Unlock()
	fn(d)
}

// SNMPField is one leaf of SNMPData bound to a MIB object.
type SNMPField struct {
	Group    string
	Name     string
	Id       string
	Writable bool
	Value    reflect.Value
}

// snmpFields walks SNMPData and returns its tagged leaves. Only leaves
// whose counterpart in enabled is non-zero are returned.
func snmpFields(data, enabled *SNMPData) []SNMPField {
	var fields []SNMPField
	dv := reflect.ValueOf(data).Elem()
	ev := reflect.ValueOf(enabled).Elem()
	t := dv.Type()
	for i := 0; i < t.NumField(); i++ {
		group := t.Field(i)
		if group.Tag.Get("snmp") == "" || group.Type.Kind() != reflect.Ptr {
			continue
		}
		gv, ge := dv.Field(i), ev.Field(i)
		if gv.IsNil() || ge.IsNil() {
			continue
		}
		gv, ge = gv.Elem(), ge.Elem()
		for j := 0; j < gv.NumField(); j++ {
			f := gv.Type().Field(j)
			tag := f.Tag.Get("snmp")
			if tag == "" || ge.Field(j).IsZero() {
				continue
			}
			parts := strings.Split(tag, ",")
			fields = append(fields, SNMPField{
				Group:    group.Name,
				Name:     f.Name,
				Id:       parts[0],
				Writable: len(parts) > 1 && parts[1] == "w",
				Value:    gv.Field(j),
			})
		}
	}
	return fields
}

// asnType maps a Go field type to the ASN.1 type it is served as.
func asnType(t reflect.Type) (gosnmp.Asn1BER, bool) {
	switch {
	case t == reflect.TypeOf(TimesTamp(0)):
		return gosnmp.TimeTicks, true
	case t.Kind() == reflect.String:
		return gosnmp.OctetString, true
	case t.Kind() == reflect.Int:
		return gosnmp.Integer, true
	}
	return 0, false
}

// setField converts an SNMP SET value into the field's type.
func setField(field reflect.Value, value any) error {
	switch v := value.(type) {
	case []byte:
		value = string(v)
	}
	rv := reflect.ValueOf(value)
	if !rv.IsValid() || !rv.Type().ConvertibleTo(field.Type()) {
		return fmt.Errorf("cannot set %T into %s", value, field.Type())
	}
	if field.Kind() == reflect.String && rv.Kind() != reflect.String {
		return fmt.Errorf("cannot set %T into %s", value, field.Type())
	}
	field.Set(rv.Convert(field.Type()))
	return nil
}

type SNMPAuth struct {
	Username string
	AuthKey  string
	PrivKey  string

	AuthProto gosnmp.SnmpV3AuthProtocol
	PrivProto gosnmp.SnmpV3PrivProtocol
}

type SNMPConfig struct {
	Address string
	Port    int
	MibDir  string

	Logger GoSNMPServer.ILogger

	PublicName  string
	PrivateName string

	Auth *SNMPAuth

	// SetCallback runs after a successful SET, with the data lock released.
	SetCallback func(snmp *SNMP, name string, value any) error
}

type SNMP struct {
	Data   *SNMPData
	Config *SNMPConfig
	Trap   *TrapSender

	Server  *GoSNMPServer.SNMPServer
	Master  *GoSNMPServer.MasterAgent
	Public  *GoSNMPServer.SubAgent
	Private *GoSNMPServer.SubAgent
	Mib     *smi.MIB

	oidMu   sync.Mutex
	oids    map[string]string // resolved names, leading dot included
	running atomic.Bool
}

var errSNMPRunning = errors.New("snmp: OID set is fixed once the server runs")

func snmpServer(config SNMPConfig, enabled, data *SNMPData) (*SNMP, error) {
	mib := smi.NewMIB(filepath.Clean(config.MibDir))
	if err := mib.LoadModules("UPS-MIB"); err != nil {
		return nil, fmt.Errorf("load UPS-MIB from %s: %w", config.MibDir, err)
	}

	snmp := &SNMP{
		Data:   data,
		Config: &config,
		Mib:    mib,
	}

	public := &GoSNMPServer.SubAgent{
		CommunityIDs: []string{config.PublicName},
	}
	private := &GoSNMPServer.SubAgent{
		CommunityIDs: []string{config.PrivateName},
	}

	master := &GoSNMPServer.MasterAgent{
		SecurityConfig: GoSNMPServer.SecurityConfig{
			AuthoritativeEngineBoots: 1,
			Users:                    []gosnmp.UsmSecurityParameters{},
		},
		SubAgents: []*GoSNMPServer.SubAgent{public, private},
	}
	if config.Logger != nil {
		master.Logger = config.Logger
	} else {
		master.Logger = GoSNMPServer.NewDefaultLogger()
	}

	for _, f := range snmpFields(data, enabled) {
		read, write, err := snmp.controlItems(f)
		if err != nil {
			return nil, err
		}
		public.OIDs = append(public.OIDs, read)
		private.OIDs = append(private.OIDs, write)
	}

	if config.Auth != nil {
		master.SecurityConfig.Users = []gosnmp.UsmSecurityParameters{
			{
				UserName:                 config.Auth.Username,
				AuthenticationProtocol:   config.Auth.AuthProto,
				PrivacyProtocol:          config.Auth.PrivProto,
				AuthenticationPassphrase: config.Auth.AuthKey,
				PrivacyPassphrase:        config.Auth.PrivKey,
			},
		}
	}

	listen := fmt.Sprintf("%s:%d", config.Address, config.Port)
	server := GoSNMPServer.NewSNMPServer(*master)
	if err := server.ListenUDP("udp", listen); err != nil {
		return nil, fmt.Errorf("listen %s: %w", listen, err)
	}

	snmp.Server = server
	snmp.Master = master
	snmp.Public = public
	snmp.Private = private
	return snmp, nil
}

// controlItems builds the item served to the public community and the one
// served to the private community. Only the latter accepts SET, and only
// for writable fields.
func (s *SNMP) controlItems(f SNMPField) (read, write *GoSNMPServer.PDUValueControlItem, err error) {
	tp, ok := asnType(f.Value.Type())
	if !ok {
		return nil, nil, fmt.Errorf("%s: unsupported type %s", f.Id, f.Value.Type())
	}
	oid := s.GetOID(f.Id, 0)
	SNMPLogger.Debugf("Add service [%s.%s](%s) %s", f.Group, f.Name, f.Id, oid)

	read = &GoSNMPServer.PDUValueControlItem{
		OID:  oid,
		Type: tp,
		OnGet: func() (any, error) {
			s.Data.mu.RLock()
			defer s.Data.mu.RUnlock()
			return f.Value.Interface(), nil
		},
	}
	if !f.Writable {
		return read, read, nil
	}

	write = &GoSNMPServer.PDUValueControlItem{
		OID:   oid,
		Type:  tp,
		OnGet: read.OnGet,
		OnSet: func(value any) error {
			s.Data.mu.Lock()
			err := setField(f.Value, value)
			s.Data.mu.Unlock()
			if err != nil {
				return err
			}
			SNMPLogger.Infof("Set %s = %v", f.Id, value)
			if s.Config.SetCallback != nil {
				return s.Config.SetCallback(s, f.Id, value)
			}
			return nil
		},
	}
	return read, write, nil
}

// 关闭 SNMP 服务器。
func (s *SNMP) Close() {
	s.Server.Shutdown()
	if s.Trap != nil {
		s.Trap.Close()
	}
}

// 启动 SNMP 服务器, 阻塞直到关闭。之后不能再添加 OID。
func (s *SNMP) Run() error {
	s.running.Store(true)
	SNMPLogger.Infof("SNMP server is running on %s:%d", s.Config.Address, s.Config.Port)
	return s.Server.ServeForever()
}

// 获取 OID。
// name: 服务名。
// index: 索引。-1: 不带索引。其他: 带索引。
func (s *SNMP) GetOID(name string, index int) string {
	if strings.HasPrefix(name, ".") {
		return name
	}
	oid, err := s.resolve(name)
	if err != nil {
		SNMPLogger.Errorf("%s not found: %s", name, err)
		return ""
	}
	if index == -1 {
		return oid
	}
	return fmt.Sprintf("%s.%d", oid, index)
}

func (s *SNMP) resolve(name string) (string, error) {
	s.oidMu.Lock()
	defer s.oidMu.Unlock()
	if oid, ok := s.oids[name]; ok {
		return oid, nil
	}
	if s.Mib == nil {
		return "", errors.New("no MIB loaded")
	}
	oid, err := s.Mib.OID(name)
	if err != nil {
		return "", err
	}
	if s.oids == nil {
		s.oids = map[string]string{}
	}
	s.oids[name] = "." + oid.String()
	return s.oids[name], nil
}

// 添加一个表。
// name: 列名。
// rows: 表的行数, 行号从 1 开始。
// onGet: 获取数据的回调函数。
// 只能在 Run 之前调用, 服务器运行后 OID 列表不再改变。
func (s *SNMP) AddTable(name string, rows int, tp gosnmp.Asn1BER, onGet func(name string, row int) (any, error)) error {
	if s.running.Load() {
		return errSNMPRunning
	}
	for i := 1; i <= rows; i++ {
		row := i
		s.Public.OIDs = append(s.Public.OIDs, &GoSNMPServer.PDUValueControlItem{
			OID:  s.GetOID(name, row),
			Type: tp,
			OnGet: func() (any, error) {
				return onGet(name, row)
			},
		})
	}
	return s.Public.SyncConfig()
}
