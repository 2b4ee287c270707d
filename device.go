package main

import (
	"fmt"
	"math"
	"strings"
	"time"

	"github.com/gosnmp/gosnmp"

	"github.com/577fkj/powermust-ups/powermust"
)

// 额定电池容量 (Ah), 用于估算剩余时间
const batteryCapacityAh = 7

// upsDevice maps driver output onto the UPS-MIB model and turns SNMP SETs
// into wire commands.
type upsDevice struct {
	data     *SNMPData
	alarm    *Alarm
	commands chan<- string
	now      func() time.Time

	disableBuzz bool

	// guarded by data.mu
	rating struct {
		Voltage        float64
		Current        float64
		BatteryVoltage float64
	}
	input struct {
		Voltage   float64
		Frequency float64
		Current   float64
		Power     float64
	}
	output struct {
		Voltage float64
		Current float64
		Power   float64
		Load    int
	}
	onBatterySince time.Time
	beeperOn       bool
	testing        bool
}

func newUPSDevice(data *SNMPData, alarm *Alarm, commands chan<- string, disableBuzz bool) *upsDevice {
	data.Update(func(d *SNMPData) {
		d.Ident.Manufacturer = "Santak"
		d.Ident.Model = "Megatec"
		d.Ident.AgentVersion = version
		d.Input.NumLines = 1
		d.Output.NumLines = 1
		d.Output.Source = 1
		d.Battery.Status = 1
		d.Test.ResultsSummary = 6
	})
	return &upsDevice{
		data:        data,
		alarm:       alarm,
		commands:    commands,
		now:         time.Now,
		disableBuzz: disableBuzz,
	}
}

// enabledServices selects the UPS-MIB scalars served over SNMP.
func enabledServices() *SNMPData {
	return &SNMPData{
		Ident: &SNMPDataIdent{
			Manufacturer:    "1",
			Model:           "1",
			SoftwareVersion: "1",
			AgentVersion:    "1",
			Name:            "1",
			AttachedDevices: "1",
		},
		Battery: &SNMPDataBattery{
			Status:  1,
			Seconds: 1,
			Minutes: 1,
			Charge:  1,
			Voltage: 1,
			Current: 1,
			Temp:    1,
		},
		Input: &SNMPDataInput{
			NumLines: 1,
			LineBads: 1,
		},
		Output: &SNMPDataOutput{
			Source:   1,
			Freq:     1,
			NumLines: 1,
		},
		Alarm: &SNMPDataAlarm{
			Present: 1,
		},
		Test: &SNMPDataTest{
			Id:             "1",
			ResultsSummary: 1,
			StartTime:      1,
		},
		Control: &SNMPDataControl{
			ShutdownAfter:  1,
			StartupAfter:   1,
			RebootDuration: 1,
		},
		Config: &SNMPDataConfig{
			InputVoltage:  1,
			InputFreq:     1,
			OutputVoltage: 1,
			OutputFreq:    1,
			OutputVA:      1,
			AudibleStatus: 1,
		},
	}
}

// registerTables adds the single-line input and output tables.
func (u *upsDevice) registerTables(snmp *SNMP) error {
	onGet := func(name string, row int) (any, error) {
		u.data.mu.RLock()
		defer u.data.mu.RUnlock()
		switch name {
		case "upsInputLineIndex", "upsOutputLineIndex":
			return row, nil
		case "upsInputFrequency":
			return int(u.input.Frequency * 10), nil
		case "upsInputVoltage":
			return int(u.input.Voltage), nil
		case "upsInputCurrent":
			return int(u.input.Current * 10), nil
		case "upsInputTruePower":
			return int(u.input.Power), nil
		case "upsOutputVoltage":
			return int(u.output.Voltage), nil
		case "upsOutputCurrent":
			return int(u.output.Current * 10), nil
		case "upsOutputPower":
			return int(u.output.Power), nil
		case "upsOutputPercentLoad":
			return u.output.Load, nil
		}
		return nil, nil
	}
	for _, name := range []string{
		"upsInputLineIndex", "upsInputFrequency", "upsInputVoltage", "upsInputCurrent", "upsInputTruePower",
		"upsOutputLineIndex", "upsOutputVoltage", "upsOutputCurrent", "upsOutputPower", "upsOutputPercentLoad",
	} {
		if err := snmp.AddTable(name, 1, gosnmp.Integer, onGet); err != nil {
			return fmt.Errorf("register %s: %w", name, err)
		}
	}
	return nil
}

func (u *upsDevice) PublishNumber(field powermust.Field, v float64) {
	u.data.Update(func(d *SNMPData) {
		switch field {
		case powermust.GridVoltage:
			u.input.Voltage = v
		case powermust.GridFrequency:
			u.input.Frequency = v
			d.Output.Freq = int(v * 10)
		case powermust.ACOutputVoltage:
			u.output.Voltage = v
			u.output.Power = v * u.output.Current
			u.input.Power = u.output.Power
		case powermust.ACOutputLoadPercent:
			u.output.Load = int(v)
			u.output.Current = v / 100 * u.rating.Current
			u.output.Power = u.output.Voltage * u.output.Current
			u.input.Current = u.output.Current
			u.input.Power = u.output.Power
			d.Battery.Current = int(u.output.Current * 10)
		case powermust.BatteryVoltage:
			d.Battery.Voltage = int(v * 10)
			u.estimateRuntime(d, v)
		case powermust.Temperature:
			if !math.IsNaN(v) {
				d.Battery.Temp = int(v)
			}
		case powermust.ACOutputRatingVoltage:
			u.rating.Voltage = v
			d.Config.InputVoltage = int(v)
			d.Config.OutputVoltage = int(v)
			d.Config.OutputVA = int(u.rating.Voltage * u.rating.Current)
		case powermust.ACOutputRatingCurrent:
			u.rating.Current = v
			d.Config.OutputVA = int(u.rating.Voltage * u.rating.Current)
		case powermust.BatteryRatingVoltage:
			u.rating.BatteryVoltage = v
		case powermust.ACOutputRatingFrequency:
			d.Config.InputFreq = int(v * 10)
			d.Config.OutputFreq = int(v * 10)
		}
	})

	if field == powermust.ACOutputLoadPercent {
		u.alarm.Set(alarmOutputOverload, v > 120)
		u.alarm.Apply()
	}
}

// estimateRuntime derives charge and minutes remaining from the battery
// voltage against its rating. Must be called with the data lock held.
func (u *upsDevice) estimateRuntime(d *SNMPData, voltage float64) {
	if u.rating.BatteryVoltage <= 0 {
		return
	}
	charge := voltage / u.rating.BatteryVoltage * 100
	if charge > 100 {
		charge = 100
	}
	d.Battery.Charge = int(charge)

	d.Battery.Minutes = 60
	if current := u.output.Current; current > 0 {
		remaining := charge / 100 * batteryCapacityAh
		d.Battery.Minutes = int(remaining / current * 60)
	}
	if d.Battery.Minutes > 60 {
		d.Battery.Minutes = 60
	}
}

func (u *upsDevice) PublishBinary(field powermust.Field, v bool) {
	toggleBeeper := false
	u.data.Update(func(d *SNMPData) {
		switch field {
		case powermust.UtilityFail:
			if v {
				d.Output.Source = 5
				d.Input.LineBads = 1
				if u.onBatterySince.IsZero() {
					u.onBatterySince = u.now()
				}
				d.Battery.Seconds = int(u.now().Sub(u.onBatterySince) / time.Second)
			} else {
				d.Output.Source = 3
				d.Input.LineBads = 0
				u.onBatterySince = time.Time{}
				d.Battery.Seconds = 0
			}
		case powermust.BatteryLow:
			if v {
				d.Battery.Status = 3
			} else {
				d.Battery.Status = 2
			}
		case powermust.TestInProgress:
			switch {
			case v && !u.testing:
				d.Test.ResultsSummary = 5
				d.Test.StartTime = sysUpTime()
			case !v && u.testing:
				d.Test.ResultsSummary = 1
				d.Test.ElapsedTime = int((sysUpTime() - d.Test.StartTime) / 100)
			}
			u.testing = v
		case powermust.BeeperOn:
			u.beeperOn = v
			if v {
				d.Config.AudibleStatus = 2
			} else {
				d.Config.AudibleStatus = 3
			}
			toggleBeeper = v && u.disableBuzz
		}
	})

	switch field {
	case powermust.UtilityFail:
		u.alarm.Set(alarmInputBad, v)
	case powermust.BatteryLow:
		u.alarm.Set(alarmLowBattery, v)
	case powermust.BypassActive:
		u.alarm.Set(alarmOnBypass, v)
	case powermust.UPSFailed:
		u.alarm.Set(alarmGeneralFault, v)
	case powermust.ShutdownActive:
		u.alarm.Set(alarmSystemOff, v)
	case powermust.TestInProgress:
		u.alarm.Set(alarmTestInProgress, v)
	}
	u.alarm.Apply()

	if toggleBeeper {
		u.queue(powermust.CmdToggleBeeper)
	}
}

func (u *upsDevice) PublishText(field powermust.Field, v string) {
	if field != powermust.UPSInfo {
		return
	}
	manufacturer, model, fw := parseInfo(v)
	u.data.Update(func(d *SNMPData) {
		if manufacturer != "" {
			d.Ident.Manufacturer = manufacturer
		}
		if model != "" {
			d.Ident.Model = model
		}
		d.Ident.SoftwareVersion = fw
	})
}

func (u *upsDevice) PublishSwitch(powermust.Switch, bool) {}

// parseInfo splits an I reply: #<company:15> <model:10> <version:10>.
func parseInfo(s string) (manufacturer, model, fw string) {
	s = strings.TrimPrefix(s, "#")
	field := func(from, to int) string {
		if from >= len(s) {
			return ""
		}
		if to > len(s) {
			to = len(s)
		}
		return strings.TrimSpace(s[from:to])
	}
	return field(0, 15), field(16, 26), field(27, 37)
}

func (u *upsDevice) queue(cmd string) {
	select {
	case u.commands <- cmd:
	default:
		Logger.Warnf("command channel full, dropping: %s", cmd)
	}
}

// onSNMPSet translates UPS-MIB control writes into wire commands.
func (u *upsDevice) onSNMPSet(snmp *SNMP, name string, value any) error {
	u.data.mu.RLock()
	control := *u.data.Control
	testID := u.data.Test.Id
	beeperOn := u.beeperOn
	audible := u.data.Config.AudibleStatus
	u.data.mu.RUnlock()

	switch name {
	case "upsTestId":
		switch {
		case strings.HasSuffix(testID, ".2") || strings.Contains(testID, "Abort"):
			u.queue(powermust.CmdCancelTest)
		case strings.HasSuffix(testID, ".5") || strings.Contains(testID, "Deep"):
			u.queue(powermust.CmdTestUntilLow)
		default:
			u.queue(powermust.CmdTest)
		}

	case "upsShutdownAfterDelay":
		if control.ShutdownAfter < 0 {
			u.queue(powermust.CmdCancelShutdown)
			return nil
		}
		restore := time.Duration(control.StartupAfter) * time.Second
		cmd, err := powermust.ShutdownCommand(time.Duration(control.ShutdownAfter)*time.Second, restore)
		if err != nil {
			return err
		}
		u.queue(cmd)

	case "upsRebootWithDuration":
		if control.RebootDuration <= 0 {
			return nil
		}
		cmd, err := powermust.ShutdownCommand(0, time.Duration(control.RebootDuration)*time.Second)
		if err != nil {
			return err
		}
		u.queue(cmd)

	case "upsConfigAudibleStatus":
		if (audible == 2) != beeperOn {
			u.queue(powermust.CmdToggleBeeper)
		}
	}
	return nil
}
