package workflow

import "testing"

func TestTriggerValidate(t *testing.T) {
	cases := []struct {
		name    string
		trigger Trigger
		wantErr bool
	}{
		{"valid cron", Trigger{Kind: TriggerCron, Cron: &CronTrigger{Schedule: "*/2 * * * *"}}, false},
		{"cron missing schedule", Trigger{Kind: TriggerCron, Cron: &CronTrigger{}}, true},
		{"valid event", Trigger{Kind: TriggerEvent, Event: &EventTrigger{Signature: "Transfer(address,address,uint256)", ChainID: "1"}}, false},
		{"event missing chain", Trigger{Kind: TriggerEvent, Event: &EventTrigger{Signature: "Transfer(...)"}}, true},
		{"valid onchain", Trigger{Kind: TriggerOnchain, Onchain: &OnchainTrigger{Target: "0xabc", ABI: "[]", ChainID: "1"}}, false},
		{"unknown kind", Trigger{Kind: "bogus"}, true},
	}
	for _, c := range cases {
		t.Run(c.name, func(t *testing.T) {
			err := c.trigger.Validate()
			if (err != nil) != c.wantErr {
				t.Fatalf("Validate() error = %v, wantErr %v", err, c.wantErr)
			}
		})
	}
}

func TestStepValidate(t *testing.T) {
	cases := []struct {
		name    string
		step    Step
		wantErr bool
	}{
		{"valid contract", Step{Kind: StepContract, Contract: &ContractStep{Target: "0xabc", ABI: "[]"}}, false},
		{"contract missing target", Step{Kind: StepContract, Contract: &ContractStep{ABI: "[]"}}, true},
		{"valid wasm", Step{Kind: StepWasm, Wasm: &WasmStep{WasmHash: "deadbeef", WasmID: "calc"}}, false},
		{"wasm missing id", Step{Kind: StepWasm, Wasm: &WasmStep{WasmHash: "deadbeef"}}, true},
		{"unknown kind", Step{Kind: "bogus"}, true},
	}
	for _, c := range cases {
		t.Run(c.name, func(t *testing.T) {
			err := c.step.Validate()
			if (err != nil) != c.wantErr {
				t.Fatalf("Validate() error = %v, wantErr %v", err, c.wantErr)
			}
		})
	}
}

func TestWasmSentinel(t *testing.T) {
	id, ok := WasmSentinel("$wasm:price-calc")
	if !ok || id != "price-calc" {
		t.Fatalf("got (%q, %v), want (price-calc, true)", id, ok)
	}
	if _, ok := WasmSentinel("not-a-sentinel"); ok {
		t.Fatal("expected ok=false for plain string")
	}
	if _, ok := WasmSentinel(42); ok {
		t.Fatal("expected ok=false for non-string")
	}
}
