package config

// DefaultTOML is the commented starter config `pj init` writes. Every
// value shown is the built-in default, so an untouched file changes
// nothing.
const DefaultTOML = `# pumpjack.toml - pj workspace configuration
# Every value below is the default; uncomment to change it.

[process]
# Expected lifetime of an agent process. Tracked processes older than
# twice this are flagged stale by 'pj cleanup'.
# stale_after = "2h"

# How long a process gets between SIGTERM and SIGKILL.
# grace_period = "5s"

# Command substrings the orphan scan treats as agent processes.
# patterns = ["claude", "codex", "gemini", "aider"]

# Pattern matches to leave alone (tmux sessions, desktop apps).
# exclude = ["tmux", "Claude.app", "Claude Helper"]

# POSIX niceness for spawned agents. 0 leaves priority alone.
# nice = 0

[limits]
# Concurrent runs allowed per key unless overridden below.
# default = 2

# [limits.providers]
# claude = 4
# codex = 2

# Model limits key on the segment after the provider colon:
# 'pj run claude:opus' resolves against models.opus.
# [limits.models]
# opus = 1

[breaker]
# Consecutive failures before a provider's circuit opens.
# max_failures = 5

# How long an open circuit refuses runs before trialing recovery.
# cooldown = "5m"

# Concurrent trial runs admitted while half-open.
# max_half_open = 1

[spawn]
# Spawner preference: "pty", "pipe", or "auto" (probe and pick).
# prefer = "auto"
`
