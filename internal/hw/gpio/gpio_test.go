package gpio

import "testing"

func TestMockDriver_ReadDefaultsHigh(t *testing.T) {
	d, err := NewDriver(true)
	if err != nil {
		t.Fatalf("NewDriver: %v", err)
	}
	defer d.Close()

	if err := d.SetupPin(17, InputPullUp); err != nil {
		t.Fatalf("SetupPin: %v", err)
	}
	level, err := d.ReadPin(17)
	if err != nil {
		t.Fatalf("ReadPin: %v", err)
	}
	if level != High {
		t.Errorf("unset pin = %v, want High", level)
	}
}

func TestMockDriver_SetAndWrite(t *testing.T) {
	m := &MockDriver{}
	m.Set(17, Low)
	if level, _ := m.ReadPin(17); level != Low {
		t.Errorf("after Set(Low) = %v, want Low", level)
	}
	m.WritePin(17, High)
	if level, _ := m.ReadPin(17); level != High {
		t.Errorf("after WritePin(High) = %v, want High", level)
	}
	if level, _ := m.ReadPin(4); level != High {
		t.Errorf("other pin = %v, want High", level)
	}
}
