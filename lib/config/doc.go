// Copyright 2026 The DevPulse Authors
// SPDX-License-Identifier: Apache-2.0

// Package config provides configuration loading for the devpulse
// binary.
//
// Configuration is loaded from a single file specified by the
// DEVPULSE_CONFIG environment variable or the --config flag. There is
// no automatic discovery: a single explicit file keeps configuration
// deterministic and auditable. Files ending in .json or .jsonc are
// parsed as JSONC (JSON extended with comments and trailing commas);
// everything else is parsed as YAML.
//
// All durations are expressed in whole seconds to match the hook-side
// configuration surface.
package config
