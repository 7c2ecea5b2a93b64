package config

const catalogModulePath = "cue.mod/module.cue"
const repositoryOverlayPath = "cue.mod/pkg/repolocator.dev/repository/repository.cue"

const catalogModuleContent = `module: "repolocator.dev/catalog"
language: {
    version: "v0.12.0"
}
`

const repositoryOverlayContent = `package repository

// #Record describes one entry of the repositories map. The map key is the
// repository name; name may be repeated for readability.
#Record: {
    name?: string
    type: string & !=""
    description?: string
    settings?: {...}
}

#Catalog: {
    repositories: [Name=string]: #Record & {
        name: *Name | string
    }
    ...
}
`

func init() {
	RegisterDefaultOverlay(func() error {
		if err := RegisterOverlayString(catalogModulePath, catalogModuleContent); err != nil {
			return err
		}
		return RegisterOverlayString(repositoryOverlayPath, repositoryOverlayContent)
	})
}
