package nerdgraph

// Fixed GraphQL documents for the client operations. All caller input
// travels through variables; the documents themselves are constant.

const queryNRQL = `
query ($accountId: Int!, $nrql: Nrql!) {
  actor {
    account(id: $accountId) {
      nrql(query: $nrql) {
        results
        metadata {
          eventTypes
          facets
          timeWindow {
            begin
            end
          }
        }
      }
    }
  }
}`

const queryDashboard = `
query ($guid: EntityGuid!) {
  actor {
    entity(guid: $guid) {
      ... on DashboardEntity {
        guid
        name
        description
        permissions
        pages {
          guid
          name
          description
          widgets {
            id
            title
            visualization {
              id
            }
            layout {
              column
              row
              width
              height
            }
            rawConfiguration
          }
        }
      }
    }
  }
}`

const queryEntitySearch = `
query ($query: String!) {
  actor {
    entitySearch(query: $query) {
      results {
        entities {
          guid
          name
          entityType
          domain
          accountId
        }
      }
    }
  }
}`

const queryAlertPolicies = `
query ($accountId: Int!) {
  actor {
    account(id: $accountId) {
      alerts {
        policiesSearch {
          policies {
            id
            name
            incidentPreference
          }
        }
      }
    }
  }
}`

const mutationCreateDashboard = `
mutation ($accountId: Int!, $dashboard: DashboardInput!) {
  dashboardCreate(accountId: $accountId, dashboard: $dashboard) {
    entityResult {
      guid
      name
    }
    errors {
      type
      description
    }
  }
}`

const mutationUpdateDashboard = `
mutation ($guid: EntityGuid!, $dashboard: DashboardInput!) {
  dashboardUpdate(guid: $guid, dashboard: $dashboard) {
    entityResult {
      guid
      name
    }
    errors {
      type
      description
    }
  }
}`

const mutationDeleteDashboard = `
mutation ($guid: EntityGuid!) {
  dashboardDelete(guid: $guid) {
    status
    errors {
      type
      description
    }
  }
}`
