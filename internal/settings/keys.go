package settings

import "github.com/spf13/viper"

// Well-known keys. Per-script entries are built with the *Key helpers.
const (
	KeyRunOnStartup            = "behavior/run_on_startup"
	KeyStartMinimized          = "behavior/start_minimized"
	KeyShowStartupNotification = "behavior/show_startup_notification"
	KeyMinimizeToTray          = "behavior/minimize_to_tray"
	KeyCloseToTray             = "behavior/close_to_tray"
	KeySingleInstance          = "behavior/single_instance"
	KeyShowScriptNotifications = "behavior/show_script_notifications"
	KeyCheckForUpdates         = "behavior/check_for_updates"
	KeySkippedVersions         = "behavior/skipped_versions"

	KeyScriptTimeoutSeconds = "execution/script_timeout_seconds"

	KeyDisabledScripts = "scripts/disabled"

	GroupExternalScripts = "scripts/external"
	GroupCustomNames     = "scripts/custom_names"
	GroupHotkeys         = "scripts/hotkeys"
	GroupPresets         = "scripts/presets"
	GroupServices        = "scripts/services"
	GroupSchedules       = "scripts/schedule"

	KeyTheme        = "appearance/theme"
	KeyFollowSystem = "appearance/follow_system"
	KeyFontSize     = "appearance/font_size"
	KeyPaddingScale = "appearance/padding_scale"

	KeyPowerShellPath = "interpreters/powershell_path"
	KeyBashPath       = "interpreters/bash_path"
	KeyUseWSL         = "interpreters/use_wsl"
	KeyWSLDistro      = "interpreters/wsl_distro"
)

// ExternalScriptKey returns the key holding an external script's path.
func ExternalScriptKey(displayName string) string {
	return GroupExternalScripts + "/" + displayName
}

// CustomNameKey returns the key holding a user-chosen display name.
func CustomNameKey(originalName string) string {
	return GroupCustomNames + "/" + originalName
}

// HotkeyKey returns the key holding a script's chord.
func HotkeyKey(identifier string) string {
	return GroupHotkeys + "/" + identifier
}

// PresetKey returns the key holding one named argument preset.
func PresetKey(identifier, presetName string) string {
	return GroupPresets + "/" + identifier + "/" + presetName
}

// ServiceKey returns the key group holding a script's service config.
func ServiceKey(identifier string) string {
	return GroupServices + "/" + identifier
}

// ScheduleKey returns the key group holding a script's schedule config.
func ScheduleKey(identifier string) string {
	return GroupSchedules + "/" + identifier
}

func registerDefaults(v *viper.Viper) {
	v.SetDefault(KeyRunOnStartup, false)
	v.SetDefault(KeyStartMinimized, false)
	v.SetDefault(KeyShowStartupNotification, true)
	v.SetDefault(KeyMinimizeToTray, true)
	v.SetDefault(KeyCloseToTray, true)
	v.SetDefault(KeySingleInstance, true)
	v.SetDefault(KeyShowScriptNotifications, true)
	v.SetDefault(KeyCheckForUpdates, true)
	v.SetDefault(KeySkippedVersions, []string{})

	v.SetDefault(KeyScriptTimeoutSeconds, 30)

	v.SetDefault(KeyDisabledScripts, []string{})

	v.SetDefault(KeyTheme, "dark")
	v.SetDefault(KeyFollowSystem, true)
	v.SetDefault(KeyFontSize, 10)
	v.SetDefault(KeyPaddingScale, 1.0)

	v.SetDefault(KeyUseWSL, false)
	v.SetDefault(KeyWSLDistro, "")
}
