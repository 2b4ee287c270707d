package main

import (
	"fmt"
	"sync"

	"github.com/gosnmp/gosnmp"
)

// UPS-MIB well known alarms.
const (
	alarmLowBattery     = "upsAlarmLowBattery"
	alarmInputBad       = "upsAlarmInputBad"
	alarmSystemOff      = "upsAlarmUpsSystemOff"
	alarmGeneralFault   = "upsAlarmGeneralFault"
	alarmOutputOverload = "upsAlarmOutputOverload"
	alarmTestInProgress = "upsAlarmTestInProgress"
	alarmOnBypass       = "upsAlarmOnBypass"
)

// knownAlarms are the alarms this agent can raise. The upsAlarmTable has
// one row per entry, registered before the server starts.
var knownAlarms = []string{
	alarmLowBattery,
	alarmInputBad,
	alarmSystemOff,
	alarmGeneralFault,
	alarmOutputOverload,
	alarmTestInProgress,
	alarmOnBypass,
}

// zeroDotZero is served as upsAlarmDescr of a vacant row.
const zeroDotZero = ".0.0"

// Alarm keeps the upsAlarmTable. Entries hold alarm descriptor names and are
// resolved to OIDs when the table is registered.
type Alarm struct {
	mu     sync.Mutex
	Alarms []AlarmEntry
	Data   *SNMPData
	Snmp   *SNMP

	descr     map[string]string
	nextID    int
	pending   []pendingTrap
	NeedApply bool
}

type pendingTrap struct {
	added bool
	entry AlarmEntry
}

func newAlarm(data *SNMPData) *Alarm {
	return &Alarm{Data: data, nextID: 1}
}

// SetSNMP registers the upsAlarmTable rows on snmp. It must be called before
// snmp.Run: the rows stay fixed and read the current alarms on every GET.
func (a *Alarm) SetSNMP(snmp *SNMP) error {
	descr := make(map[string]string, len(knownAlarms))
	for _, name := range knownAlarms {
		descr[name] = snmp.GetOID(name, -1)
	}

	rows := len(knownAlarms)
	for _, col := range []struct {
		name string
		tp   gosnmp.Asn1BER
	}{
		{"upsAlarmId", gosnmp.Integer},
		{"upsAlarmDescr", gosnmp.ObjectIdentifier},
		{"upsAlarmTime", gosnmp.TimeTicks},
	} {
		if err := snmp.AddTable(col.name, rows, col.tp, a.row); err != nil {
			return err
		}
	}

	a.mu.Lock()
	a.Snmp = snmp
	a.descr = descr
	a.mu.Unlock()
	return nil
}

// row serves one upsAlarmTable cell. Rows past the active alarms read as
// id 0, zeroDotZero and time 0.
func (a *Alarm) row(name string, row int) (any, error) {
	a.mu.Lock()
	defer a.mu.Unlock()
	vacant := row < 1 || row > len(a.Alarms)
	switch name {
	case "upsAlarmId":
		if vacant {
			return 0, nil
		}
		return a.Alarms[row-1].Index, nil
	case "upsAlarmDescr":
		if vacant {
			return zeroDotZero, nil
		}
		if oid := a.descr[a.Alarms[row-1].Descr]; oid != "" {
			return oid, nil
		}
		return zeroDotZero, nil
	case "upsAlarmTime":
		if vacant {
			return uint32(0), nil
		}
		return uint32(a.Alarms[row-1].Time), nil
	}
	return nil, fmt.Errorf("unknown alarm column %s", name)
}

// Set raises or clears desc. It reports whether anything changed.
func (a *Alarm) Set(desc string, active bool) bool {
	if !knownAlarm(desc) {
		return false
	}
	a.mu.Lock()
	defer a.mu.Unlock()
	i := a.find(desc)
	switch {
	case active && i < 0:
		entry := AlarmEntry{Index: a.nextID, Descr: desc, Time: sysUpTime()}
		a.nextID++
		a.Alarms = append(a.Alarms, entry)
		a.pending = append(a.pending, pendingTrap{added: true, entry: entry})
	case !active && i >= 0:
		entry := a.Alarms[i]
		a.Alarms = append(a.Alarms[:i], a.Alarms[i+1:]...)
		a.pending = append(a.pending, pendingTrap{added: false, entry: entry})
	default:
		return false
	}
	a.NeedApply = true
	return true
}

func (a *Alarm) Exist(desc string) bool {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.find(desc) >= 0
}

func (a *Alarm) Len() int {
	a.mu.Lock()
	defer a.mu.Unlock()
	return len(a.Alarms)
}

func knownAlarm(desc string) bool {
	for _, name := range knownAlarms {
		if name == desc {
			return true
		}
	}
	return false
}

func (a *Alarm) find(desc string) int {
	for i, alarm := range a.Alarms {
		if alarm.Descr == desc {
			return i
		}
	}
	return -1
}

// Apply publishes pending changes: upsAlarmsPresent and one trap per added
// or removed alarm. The table rows read the alarm list directly.
func (a *Alarm) Apply() {
	a.mu.Lock()
	if !a.NeedApply {
		a.mu.Unlock()
		return
	}
	a.NeedApply = false
	present := len(a.Alarms)
	traps := a.pending
	a.pending = nil
	snmp := a.Snmp
	a.mu.Unlock()

	a.Data.Update(func(d *SNMPData) {
		d.Alarm.Present = present
	})

	if snmp == nil || snmp.Trap == nil {
		return
	}
	for _, p := range traps {
		if err := snmp.Trap.Send(alarmTrap(snmp, p)); err != nil {
			SNMPLogger.Errorf("send trap for %s: %s", p.entry.Descr, err)
		}
	}
}

func alarmTrap(snmp *SNMP, p pendingTrap) TrapData {
	name := "upsTrapAlarmEntryAdded"
	if !p.added {
		name = "upsTrapAlarmEntryRemoved"
	}
	return TrapData{
		OID: snmp.GetOID(name, -1),
		Data: []TrapDataItem{
			{
				OID:   snmp.GetOID("upsAlarmId", p.entry.Index),
				Type:  gosnmp.Integer,
				Value: p.entry.Index,
			},
			{
				OID:   snmp.GetOID("upsAlarmDescr", p.entry.Index),
				Type:  gosnmp.ObjectIdentifier,
				Value: snmp.GetOID(p.entry.Descr, -1),
			},
		},
	}
}
