package filesystem

import "github.com/timzifer/repolocator/config"

const filesystemOverlayPath = "cue.mod/pkg/repolocator.dev/drivers/filesystem/filesystem.cue"

const filesystemOverlayContent = `package filesystem

import "repolocator.dev/repository"

#Settings: {
    path: string & !=""
    username?: string
    password?: string
    create?: bool
}

#Record: repository.#Record & {
    type: "filesystem"
    settings: #Settings
}
`

func init() {
	config.RegisterDefaultOverlay(func() error {
		return config.RegisterOverlayString(filesystemOverlayPath, filesystemOverlayContent)
	})
}
