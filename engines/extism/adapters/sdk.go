package adapters

import (
	"context"

	extismSDK "github.com/extism/go-sdk"
	"github.com/tetratelabs/wazero"
)

type sdkCompiledPlugin struct {
	plugin *extismSDK.CompiledPlugin
}

// NewCompiledPluginAdapter wraps plugin. It returns nil for a nil plugin.
func NewCompiledPluginAdapter(plugin *extismSDK.CompiledPlugin) CompiledPlugin {
	if plugin == nil {
		return nil
	}
	return &sdkCompiledPlugin{plugin: plugin}
}

func (a *sdkCompiledPlugin) Instance(
	ctx context.Context,
	config extismSDK.PluginInstanceConfig,
) (PluginInstance, error) {
	instance, err := a.plugin.Instance(ctx, config)
	if err != nil {
		return nil, err
	}
	return &sdkPlugin{instance: instance}, nil
}

func (a *sdkCompiledPlugin) Close(ctx context.Context) error {
	return a.plugin.Close(ctx)
}

type sdkPlugin struct {
	instance *extismSDK.Plugin
}

func (a *sdkPlugin) CallWithContext(ctx context.Context, name string, data []byte) (uint32, []byte, error) {
	return a.instance.CallWithContext(ctx, name, data)
}

func (a *sdkPlugin) FunctionExists(name string) bool {
	return a.instance.FunctionExists(name)
}

func (a *sdkPlugin) SetLogger(logger func(extismSDK.LogLevel, string)) {
	a.instance.SetLogger(logger)
}

func (a *sdkPlugin) Close(ctx context.Context) error {
	return a.instance.Close(ctx)
}

// NewPluginInstanceConfig returns the per-instance module config: wall and monotonic clocks are
// visible to the guest, nothing else is.
func NewPluginInstanceConfig() extismSDK.PluginInstanceConfig {
	return extismSDK.PluginInstanceConfig{
		ModuleConfig: wazero.NewModuleConfig().WithSysWalltime().WithSysNanotime(),
	}
}
