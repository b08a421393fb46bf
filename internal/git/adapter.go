package git

// Adapter implements lifecycle.GitOps by delegating to this package's free
// functions, which each shell out to the git/gh CLIs. The zero value is
// ready to use.
type Adapter struct{}

func (Adapter) EnsureProtocolWorktree(repoPath, protocolName, baseBranch string) (string, error) {
	return EnsureProtocolWorktree(repoPath, protocolName, baseBranch)
}

func (Adapter) StatusAndLastCommit(workspace string) (string, string, error) {
	return StatusAndLastCommit(workspace)
}

func (Adapter) PushBranch(workspace, branch string) error {
	return PushBranch(workspace, branch)
}

func (Adapter) CreatePR(workspace, branch, baseBranch, title, body string) (string, int, error) {
	return CreatePR(workspace, branch, baseBranch, title, body)
}

func (Adapter) CloneRepo(gitURL, localPath string) error {
	return CloneRepo(gitURL, localPath)
}

func (Adapter) ConfigureIdentity(localPath, name, email string) error {
	return ConfigureIdentity(localPath, name, email)
}
