package plugin

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/soyeahso/botrelay/internal/chatconfig"
	"github.com/soyeahso/botrelay/internal/config"
	"github.com/soyeahso/botrelay/internal/hooks"
	"github.com/soyeahso/botrelay/internal/logging"
	"github.com/soyeahso/botrelay/internal/orchestrator"
)

type testPlugin struct {
	id      string
	initErr error
	journal *[]string
}

func (p *testPlugin) ID() string { return p.id }

func (p *testPlugin) Init(_ context.Context, api API) error {
	*p.journal = append(*p.journal, "init "+p.id)
	return p.initErr
}

func (p *testPlugin) Close() error {
	*p.journal = append(*p.journal, "close "+p.id)
	return nil
}

func testAPI() API {
	log := logging.New(nil, "silent")
	return API{
		Hooks:         hooks.NewManager(log),
		Orchestrators: orchestrator.NewRegistry(orchestrator.Deps{Log: log}),
		Log:           log,
	}
}

func TestRegistryRegister(t *testing.T) {
	reg := NewRegistry(testAPI(), logging.New(nil, "silent"))
	var journal []string
	require.NoError(t, reg.Register(&testPlugin{id: "a", journal: &journal}))
	require.NoError(t, reg.Register(&testPlugin{id: "b", journal: &journal}))

	err := reg.Register(&testPlugin{id: "a", journal: &journal})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "already registered")
	assert.Equal(t, []string{"a", "b"}, reg.List())
}

func TestRegistryLifecycleOrder(t *testing.T) {
	reg := NewRegistry(testAPI(), logging.New(nil, "silent"))
	var journal []string
	for _, id := range []string{"a", "b", "c"} {
		require.NoError(t, reg.Register(&testPlugin{id: id, journal: &journal}))
	}

	require.NoError(t, reg.InitAll(context.Background()))
	require.NoError(t, reg.InitAll(context.Background()))
	reg.CloseAll()
	reg.CloseAll()

	assert.Equal(t, []string{"init a", "init b", "init c", "close c", "close b", "close a"}, journal)
}

func TestRegistryInitFailureRollsBack(t *testing.T) {
	reg := NewRegistry(testAPI(), logging.New(nil, "silent"))
	var journal []string
	require.NoError(t, reg.Register(&testPlugin{id: "a", journal: &journal}))
	require.NoError(t, reg.Register(&testPlugin{id: "b", initErr: errors.New("no socket"), journal: &journal}))
	require.NoError(t, reg.Register(&testPlugin{id: "c", journal: &journal}))

	err := reg.InitAll(context.Background())
	require.Error(t, err)
	assert.Contains(t, err.Error(), "init plugin b")
	assert.Equal(t, []string{"init a", "init b", "close a"}, journal)
}

func TestFuncPluginRegistersOrchestratorType(t *testing.T) {
	api := testAPI()
	reg := NewRegistry(api, logging.New(nil, "silent"))
	require.NoError(t, reg.Register(Func{Name: "shout", OnInit: func(_ context.Context, api API) error {
		api.Orchestrators.Register("shout", orchestrator.NewEcho)
		return nil
	}}))
	require.NoError(t, reg.InitAll(context.Background()))

	assert.True(t, api.Orchestrators.Has("shout"))
	o, err := api.Orchestrators.Load(chatconfig.ChatConfig{"name": "loud", "type": "shout"})
	require.NoError(t, err)
	assert.Equal(t, "loud", o.Name())
}

func TestBuiltinPlugins(t *testing.T) {
	api := testAPI()
	reg := NewRegistry(api, logging.New(nil, "silent"))
	require.NoError(t, reg.Register(EventLog()))
	require.NoError(t, reg.Register(CommandHooks(config.HooksConfig{
		GatewayStart: []config.HookEntry{{Command: "true"}, {Command: ""}},
	})))
	require.NoError(t, reg.InitAll(context.Background()))

	for _, event := range hooks.AllEvents {
		want := 1
		if event == hooks.EventGatewayStart {
			want = 2
		}
		assert.Equal(t, want, api.Hooks.Count(event), event)
	}
}

func TestBuiltinPluginsWithoutHooks(t *testing.T) {
	reg := NewRegistry(API{}, logging.New(nil, "silent"))
	require.NoError(t, reg.Register(EventLog()))
	require.NoError(t, reg.Register(CommandHooks(config.HooksConfig{})))
	assert.NoError(t, reg.InitAll(context.Background()))
}
