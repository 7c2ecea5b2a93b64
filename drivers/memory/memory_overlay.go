package memory

import "github.com/timzifer/repolocator/config"

const memoryOverlayPath = "cue.mod/pkg/repolocator.dev/drivers/memory/memory.cue"

const memoryOverlayContent = `package memory

import "repolocator.dev/repository"

#Settings: {
    users?: [string]: string
    entries?: [string]: string
}

#Record: repository.#Record & {
    type: "memory"
    settings?: #Settings
}
`

func init() {
	config.RegisterDefaultOverlay(func() error {
		return config.RegisterOverlayString(memoryOverlayPath, memoryOverlayContent)
	})
}
