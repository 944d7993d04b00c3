package cli

func (a *App) commands() []command {
	return []command{
		{name: "register", usage: "register [email] [name]", run: a.register},
		{name: "login", usage: "login [email]", run: a.login},
		{name: "oauth", usage: "oauth <provider> <id-token>", run: a.oauth},
		{name: "logout", usage: "logout", auth: true, run: a.logout},
		{name: "whoami", usage: "whoami", auth: true, run: a.whoami},
		{name: "set", usage: "set <name|language|apikey> <value>", auth: true, run: a.set},
		{name: "avatar", usage: "avatar <image file>", auth: true, run: a.avatar},
		{name: "import", usage: "import", auth: true, run: a.importLocal},

		{name: "techniques", alias: "l", usage: "techniques [category]", run: a.techniques},
		{name: "show", usage: "show <id>", run: a.show},
		{name: "bookmark", usage: "bookmark <id>", run: a.bookmark},
		{name: "bookmarks", usage: "bookmarks", run: a.bookmarks},
		{name: "download", usage: "download <id>", run: a.download},
		{name: "undownload", usage: "undownload <id>", run: a.undownload},
		{name: "downloads", usage: "downloads", run: a.downloads},
		{name: "cleardownloads", usage: "cleardownloads", run: a.clearDownloads},

		{name: "ask", usage: "ask [question]", run: a.ask},
		{name: "newchat", usage: "newchat", run: a.newChat},
		{name: "chats", usage: "chats", run: a.chats},
		{name: "chat", usage: "chat <id>", run: a.chat},
		{name: "delchat", usage: "delchat <id>", run: a.delChat},
		{name: "quota", usage: "quota", run: a.quota},

		{name: "products", usage: "products", run: a.products},
		{name: "buy", usage: "buy <product>", auth: true, run: a.buy},
		{name: "restore", usage: "restore", auth: true, run: a.restore},
	}
}
